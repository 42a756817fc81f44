// Package drive stores attachments in Google Drive, one folder per user.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	driveapi "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
)

const folderMimeType = "application/vnd.google-apps.folder"

type Uploader struct {
	srv    *driveapi.Service
	root   string
	logger *slog.Logger

	mu      sync.Mutex
	folders map[string]string // user -> folder id
}

func New(ctx context.Context, rootFolderID string, logger *slog.Logger, opts ...option.ClientOption) (*Uploader, error) {
	srv, err := driveapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return NewWithService(srv, rootFolderID, logger), nil
}

func NewWithService(srv *driveapi.Service, rootFolderID string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	if rootFolderID == "" {
		rootFolderID = "root"
	}
	return &Uploader{srv: srv, root: rootFolderID, logger: logger, folders: map[string]string{}}
}

func (u *Uploader) Upload(ctx context.Context, userID, filename string, data []byte) (entity.UploadResult, error) {
	folderID, err := u.userFolder(ctx, userID)
	if err != nil {
		return entity.UploadResult{}, err
	}
	f, err := u.srv.Files.Create(&driveapi.File{Name: filename, Parents: []string{folderID}}).
		Media(bytes.NewReader(data)).
		Fields(googleapi.Field("id, webViewLink")).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return entity.UploadResult{}, fmt.Errorf("upload %s: %w", filename, err)
	}
	u.logger.Info("drive.upload", "user_id", userID, "file_id", f.Id, "bytes", len(data))
	return entity.UploadResult{FileID: f.Id, ViewLink: f.WebViewLink}, nil
}

// userFolder finds or creates the user's folder under root. The id is cached
// for the life of the uploader.
func (u *Uploader) userFolder(ctx context.Context, userID string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if id, ok := u.folders[userID]; ok {
		return id, nil
	}

	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
		escapeQuery(userID), folderMimeType, escapeQuery(u.root))
	list, err := u.srv.Files.List().
		Q(q).
		Fields(googleapi.Field("files(id, name)")).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("find folder: %w", err)
	}
	if len(list.Files) > 0 {
		u.folders[userID] = list.Files[0].Id
		return list.Files[0].Id, nil
	}

	f, err := u.srv.Files.Create(&driveapi.File{Name: userID, MimeType: folderMimeType, Parents: []string{u.root}}).
		Fields(googleapi.Field("id")).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	u.logger.Info("drive.folder.created", "user_id", userID, "folder_id", f.Id)
	u.folders[userID] = f.Id
	return f.Id, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
