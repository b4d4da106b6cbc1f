package repository

import (
	"encoding/json"
	"fmt"

	"naszgpt-backend/internal/models"
)

// storedAttachment is the persisted form of an attachment. Unlike the API
// shape it keeps the extracted text, which later turns put back into the
// system prompt.
type storedAttachment struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Text      string `json:"text"`
	Chars     int    `json:"chars"`
}

func encodeAttachment(a *models.Attachment) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal(storedAttachment{
		Name:      a.Name,
		Extension: a.Extension,
		Text:      a.Text,
		Chars:     a.Chars,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachment: %w", err)
	}
	return b, nil
}

func decodeAttachment(data []byte) (*models.Attachment, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var s storedAttachment
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &models.Attachment{
		Name:      s.Name,
		Extension: s.Extension,
		Text:      s.Text,
		Chars:     s.Chars,
	}, nil
}
