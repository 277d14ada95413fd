package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultAPIBase is the public Bot API endpoint.
	DefaultAPIBase = "https://api.telegram.org"

	defaultPutTimeout   = 90 * time.Second
	defaultFetchTimeout = 60 * time.Second
)

// Telegram uploads parts as documents to a private channel through the Bot
// API and fetches them back through getFile.
type Telegram struct {
	apiBase     string
	botToken    string
	chatID      string
	putClient   *http.Client
	fetchClient *http.Client
}

// TelegramOptions configures a Telegram transport.
type TelegramOptions struct {
	APIBase      string
	PutTimeout   time.Duration
	FetchTimeout time.Duration
}

// NewTelegram creates a transport for the given bot token and storage
// channel. Timeouts are generous by default to tolerate large parts.
func NewTelegram(botToken, chatID string, opts TelegramOptions) *Telegram {
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.PutTimeout <= 0 {
		opts.PutTimeout = defaultPutTimeout
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	return &Telegram{
		apiBase:     opts.APIBase,
		botToken:    botToken,
		chatID:      chatID,
		putClient:   &http.Client{Timeout: opts.PutTimeout},
		fetchClient: &http.Client{Timeout: opts.FetchTimeout},
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type sendDocumentResult struct {
	MessageID int64 `json:"message_id"`
	Document  struct {
		FileID string `json:"file_id"`
	} `json:"document"`
}

type getFileResult struct {
	FilePath string `json:"file_path"`
}

// PutPart sends one part as a document to the storage channel.
func (t *Telegram) PutPart(ctx context.Context, name string, r io.Reader, size int64) (PartRef, error) {
	const op = "telegram.PutPart"

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			if err := mw.WriteField("chat_id", t.chatID); err != nil {
				return err
			}
			if err := mw.WriteField("caption", name); err != nil {
				return err
			}
			fw, err := mw.CreateFormFile("document", name)
			if err != nil {
				return err
			}
			if _, err := io.Copy(fw, r); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	reqURL := fmt.Sprintf("%s/bot%s/sendDocument", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, pr)
	if err != nil {
		return PartRef{}, &Error{Kind: KindTransient, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.putClient.Do(req)
	if err != nil {
		return PartRef{}, &Error{Kind: KindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()

	var result sendDocumentResult
	if err := t.decodeAPIResponse(op, resp.Body, &result); err != nil {
		return PartRef{}, err
	}
	if result.Document.FileID == "" {
		return PartRef{}, &Error{Kind: KindTransient, Op: op, Err: fmt.Errorf("response carried no document file_id")}
	}

	return PartRef{MessageID: result.MessageID, FileID: result.Document.FileID}, nil
}

// ResolvePart resolves a file_id to a direct download URL via getFile.
func (t *Telegram) ResolvePart(ctx context.Context, fileID string) (string, error) {
	const op = "telegram.ResolvePart"

	reqURL := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", t.apiBase, t.botToken, url.QueryEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", &Error{Kind: KindTransient, Op: op, Err: err}
	}

	resp, err := t.fetchClient.Do(req)
	if err != nil {
		return "", &Error{Kind: KindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()

	var result getFileResult
	if err := t.decodeAPIResponse(op, resp.Body, &result); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/file/bot%s/%s", t.apiBase, t.botToken, result.FilePath), nil
}

// FetchPart streams the bytes behind a fetch URL into w.
func (t *Telegram) FetchPart(ctx context.Context, fetchURL string, w io.Writer) error {
	const op = "telegram.FetchPart"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return &Error{Kind: KindTransient, Op: op, Err: err}
	}

	resp, err := t.fetchClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// The file endpoint has no JSON envelope; a throttle delay can only
		// arrive in the Retry-After header.
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return t.classifyHTTP(op, resp.StatusCode, retryAfter)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return &Error{Kind: KindTransient, Op: op, Err: fmt.Errorf("failed to stream part bytes: %v", err)}
	}
	return nil
}

// decodeAPIResponse parses a Bot API envelope and unmarshals the result into
// out. Failures are mapped to tagged error kinds here, once, at the boundary.
func (t *Telegram) decodeAPIResponse(op string, body io.Reader, out interface{}) error {
	var envelope apiResponse
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		return &Error{Kind: KindTransient, Op: op, Err: fmt.Errorf("failed to decode API response: %v", err)}
	}

	if !envelope.OK {
		retryAfter := 0
		if envelope.Parameters != nil {
			retryAfter = envelope.Parameters.RetryAfter
		}
		return t.classifyHTTP(op, envelope.ErrorCode, retryAfter)
	}

	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return &Error{Kind: KindTransient, Op: op, Err: fmt.Errorf("failed to decode API result: %v", err)}
	}
	return nil
}

func (t *Telegram) classifyHTTP(op string, code, retryAfter int) *Error {
	switch {
	case code == http.StatusTooManyRequests:
		if retryAfter <= 0 {
			// A throttle without a stated delay is retried as an ordinary
			// transient failure so the attempt ceiling still applies.
			return &Error{Kind: KindTransient, Op: op, Err: fmt.Errorf("rate limited without a stated delay")}
		}
		return &Error{
			Kind:       KindRateLimited,
			Op:         op,
			RetryAfter: time.Duration(retryAfter) * time.Second,
		}
	case code >= 400 && code < 500:
		// Bad file_id, revoked token, deleted message: retrying cannot help.
		return &Error{Kind: KindPermanent, Op: op, Err: fmt.Errorf("API error %d", code)}
	default:
		return &Error{Kind: KindTransient, Op: op, Err: fmt.Errorf("API error %d", code)}
	}
}
