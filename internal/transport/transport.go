package transport

// PartRef identifies one uploaded part on the remote side. MessageID is the
// message that carries the part; FileID is the opaque locator used to fetch
// it back.
type PartRef struct {
	MessageID int64  `json:"message_id"`
	FileID    string `json:"file_id"`
}
