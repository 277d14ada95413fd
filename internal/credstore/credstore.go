package credstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/tgvault/tgvault/internal/encryptor"
)

// Credentials holds what the engine needs to reach one owner's private
// storage channel.
type Credentials struct {
	OwnerID   string `json:"owner_id"`
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
	ClientID  string `json:"client_id"`
	CreatedAt int64  `json:"created_at"` // Unix timestamp
}

// Store wraps BadgerDB for credential persistence. Bot tokens are sealed at
// rest with the local secret; everything else is stored as plain JSON.
type Store struct {
	db     *badger.DB
	enc    encryptor.Encryptor
	secret string
}

// OpenStore opens (or creates) a BadgerDB at the given path.
func OpenStore(dbPath, secret string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %v", err)
	}
	return &Store{db: db, enc: encryptor.NewEncryptor(), secret: secret}, nil
}

// Close closes the BadgerDB.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutCredentials stores credentials for an owner, sealing the bot token.
func (s *Store) PutCredentials(c Credentials) error {
	sealed, err := s.enc.Encrypt([]byte(c.BotToken), s.secret)
	if err != nil {
		return fmt.Errorf("failed to seal bot token: %v", err)
	}
	c.BotToken = base64.StdEncoding.EncodeToString(sealed)

	key := []byte("user:" + c.OwnerID)
	val, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// GetCredentials retrieves credentials for an owner, unsealing the bot token.
func (s *Store) GetCredentials(ownerID string) (Credentials, error) {
	key := []byte("user:" + ownerID)
	var c Credentials
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &c)
		})
	})
	if err != nil {
		return Credentials{}, err
	}

	sealed, err := base64.StdEncoding.DecodeString(c.BotToken)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to decode sealed bot token: %v", err)
	}
	token, err := s.enc.Decrypt(sealed, s.secret)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to unseal bot token: %v", err)
	}
	c.BotToken = string(token)

	return c, nil
}

// NewCredentials builds a credentials record with a fresh client identity.
func NewCredentials(ownerID, botToken, channelID string) Credentials {
	return Credentials{
		OwnerID:   ownerID,
		BotToken:  botToken,
		ChannelID: channelID,
		ClientID:  uuid.New().String(),
		CreatedAt: time.Now().Unix(),
	}
}
