package services

import (
	"mydiary/internal/crypto"
	"mydiary/internal/models"
)

// EncryptionService seals the free-text fields of an entry before they reach the DB.
type EncryptionService struct {
	cipher *crypto.Cipher
}

func NewEncryptionService(key []byte) (*EncryptionService, error) {
	c, err := crypto.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &EncryptionService{cipher: c}, nil
}

// EncryptEntry replaces title and content with their ciphertext.
func (s *EncryptionService) EncryptEntry(e *models.Entry) error {
	title, err := s.cipher.Seal(e.Title)
	if err != nil {
		return err
	}
	content, err := s.cipher.Seal(e.Content)
	if err != nil {
		return err
	}
	e.Title, e.Content = title, content
	return nil
}

func (s *EncryptionService) DecryptEntry(e *models.Entry) error {
	title, err := s.cipher.Open(e.Title)
	if err != nil {
		return err
	}
	content, err := s.cipher.Open(e.Content)
	if err != nil {
		return err
	}
	e.Title, e.Content = title, content
	return nil
}
