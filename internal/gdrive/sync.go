package gdrive

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Exporter mirrors finished session transcripts into a Drive folder as
// Google Docs. Re-exporting a session updates the existing document.
type Exporter struct {
	service  *drive.Service
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewExporter(ctx context.Context, credPath, folderID string) (*Exporter, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Exporter{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

func (e *Exporter) Export(sessionID, transcript string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := fmt.Sprintf("dictaflow-%s", sessionID)

	if fileID, ok := e.fileIDs[sessionID]; ok {
		_, err := e.service.Files.Update(fileID, &drive.File{}).Media(strings.NewReader(transcript)).Do()
		if err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	doc, err := e.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.document",
		Parents:  []string{e.folderID},
	}).Media(strings.NewReader(transcript)).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	e.fileIDs[sessionID] = doc.Id
	return nil
}
