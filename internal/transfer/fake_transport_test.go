package transfer

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tgvault/tgvault/internal/transport"
)

// fakeTransport is an in-memory part transport with scriptable failures.
type fakeTransport struct {
	mu     sync.Mutex
	nextID int
	parts  map[string][]byte

	putNames      []string
	putFailOnce   map[string][]error // per part name, consumed in order
	putFailAlways map[string]error

	resolveCalls  map[string]int
	resolveFail   map[string]error
	fetchFail     map[string]error
	fetchVanish   map[string]bool // remove the destination file after a successful fetch
	fetchMaxDelay time.Duration   // random per-fetch delay to shuffle completion order
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		parts:         make(map[string][]byte),
		putFailOnce:   make(map[string][]error),
		putFailAlways: make(map[string]error),
		resolveCalls:  make(map[string]int),
		resolveFail:   make(map[string]error),
		fetchFail:     make(map[string]error),
		fetchVanish:   make(map[string]bool),
	}
}

func (f *fakeTransport) PutPart(ctx context.Context, name string, r io.Reader, size int64) (transport.PartRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.putFailAlways[name]; err != nil {
		return transport.PartRef{}, err
	}
	if queue := f.putFailOnce[name]; len(queue) > 0 {
		err := queue[0]
		f.putFailOnce[name] = queue[1:]
		if err != nil {
			return transport.PartRef{}, err
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return transport.PartRef{}, err
	}

	f.nextID++
	fileID := fmt.Sprintf("FID-%d", f.nextID)
	f.parts[fileID] = data
	f.putNames = append(f.putNames, name)

	return transport.PartRef{MessageID: int64(f.nextID), FileID: fileID}, nil
}

func (f *fakeTransport) ResolvePart(ctx context.Context, fileID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resolveCalls[fileID]++
	if err := f.resolveFail[fileID]; err != nil {
		return "", err
	}
	return "fake://" + fileID, nil
}

func (f *fakeTransport) FetchPart(ctx context.Context, fetchURL string, w io.Writer) error {
	fileID := strings.TrimPrefix(fetchURL, "fake://")

	f.mu.Lock()
	err := f.fetchFail[fileID]
	data, ok := f.parts[fileID]
	vanish := f.fetchVanish[fileID]
	maxDelay := f.fetchMaxDelay
	f.mu.Unlock()

	if maxDelay > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(maxDelay))))
	}
	if err != nil {
		return err
	}
	if !ok {
		return &transport.Error{Kind: transport.KindPermanent, Op: "fake.FetchPart", Err: fmt.Errorf("unknown locator %s", fileID)}
	}

	if _, err := w.Write(data); err != nil {
		return err
	}
	if vanish {
		if named, ok := w.(interface{ Name() string }); ok {
			os.Remove(named.Name())
		}
	}
	return nil
}

// storedPayload concatenates the stored parts in the order given by refs.
func (f *fakeTransport) storedPayload(refs []transport.PartRef) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []byte
	for _, ref := range refs {
		out = append(out, f.parts[ref.FileID]...)
	}
	return out
}

func transientErr(msg string) error {
	return &transport.Error{Kind: transport.KindTransient, Op: "fake", Err: fmt.Errorf("%s", msg)}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
