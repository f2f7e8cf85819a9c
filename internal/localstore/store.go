package localstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"shopfront/internal/models"
)

// Well-known keys. Values are plain JSON with no versioning scheme, the same
// contract a browser tab keeps with its localStorage.
const (
	KeyAccessToken = "shopfront.access_token"
	KeyGuestCart   = "shopfront.guest_cart"
)

type Entry struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

func (Entry) TableName() string { return "entries" }

// Store is the client-local persistence shared by the session manager and
// the guest cart. Access is last-write-wins; the sqlite handle is the only
// serialization point.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the local store at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(key string, out any) (bool, error) {
	var e Entry
	if err := s.db.First(&e, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(e.Value), out); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	e := Entry{Key: key, Value: string(raw)}
	if err := s.db.Save(&e).Error; err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	if err := s.db.Delete(&Entry{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// AccessToken returns the persisted token, or "" when absent or unreadable.
// A corrupt entry is indistinguishable from not-logged-in on purpose.
func (s *Store) AccessToken() string {
	var token string
	ok, err := s.Get(KeyAccessToken, &token)
	if err != nil || !ok {
		return ""
	}
	return token
}

func (s *Store) SetAccessToken(token string) error {
	return s.Set(KeyAccessToken, token)
}

func (s *Store) ClearAccessToken() error {
	return s.Delete(KeyAccessToken)
}

func (s *Store) GuestCart() []models.CartLineItem {
	var items []models.CartLineItem
	ok, err := s.Get(KeyGuestCart, &items)
	if err != nil || !ok {
		return nil
	}
	return items
}

func (s *Store) SetGuestCart(items []models.CartLineItem) error {
	return s.Set(KeyGuestCart, items)
}

func (s *Store) ClearGuestCart() error {
	return s.Delete(KeyGuestCart)
}
