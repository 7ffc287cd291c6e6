package gradeclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Session identifies the signed in user. It is passed explicitly to the client and
// persisted only through SaveSession and LoadSession.
type Session struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role"`
	Name   string    `json:"name,omitempty"`
	Token  string    `json:"token"`
}

// Authenticated reports whether the session carries credentials.
func (s Session) Authenticated() bool {
	return s.Token != "" && s.UserID != uuid.Nil
}

// EncodeSession writes the session as JSON.
func EncodeSession(w io.Writer, session Session) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(session)
}

// DecodeSession reads a session written by EncodeSession.
func DecodeSession(r io.Reader) (Session, error) {
	var session Session
	if err := json.NewDecoder(r).Decode(&session); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

// SaveSession stores the session at path, readable by the owner only.
func SaveSession(path string, session Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open session file: %w", err)
	}
	if err := EncodeSession(file, session); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// LoadSession reads the session at path. A missing file yields an empty session.
func LoadSession(path string) (Session, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("open session file: %w", err)
	}
	defer file.Close()

	return DecodeSession(file)
}
