package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Upload is a settled file under a user's upload directory.
type Upload struct {
	UserID string
	Path   string
}

type WatchConfig struct {
	Root        string        // <root>/<userId>/... is watched recursively
	InitialScan bool          // emit files already present
	Debounce    time.Duration // coalesce create/write bursts per path
}

// StartWatcher emits uploads once a path has been quiet for Debounce.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan Upload, <-chan error, error) {
	if cfg.Root == "" {
		return nil, nil, errors.New("no root provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, nil, err
	}
	evCh := make(chan Upload, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	var initial []Upload
	addDir := func(dir string) error {
		return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != root && IsHidden(path) {
					return filepath.SkipDir
				}
				return w.Add(path)
			}
			if cfg.InitialScan {
				if u, ok := uploadFor(root, path); ok {
					initial = append(initial, u)
				}
			}
			return nil
		})
	}
	if err := addDir(root); err != nil {
		_ = w.Close()
		return nil, nil, err
	}

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("watcher.close_failed", "err", err)
			}
		}()

		for _, u := range initial {
			select {
			case evCh <- u:
			case <-ctx.Done():
				return
			}
		}

		pending := map[string]time.Time{}
		tick := time.NewTicker(tickFor(cfg.Debounce))
		defer tick.Stop()

		flush := func(now time.Time, all bool) {
			for p, last := range pending {
				if !all && now.Sub(last) < cfg.Debounce {
					continue
				}
				delete(pending, p)
				u, ok := uploadFor(root, p)
				if !ok {
					continue
				}
				select {
				case evCh <- u:
				default:
					logger.Warn("watcher.dropped", "path", p)
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&fsnotify.Create == fsnotify.Create {
					if fi, err := os.Stat(e.Name); err == nil && fi.IsDir() {
						if err := addDir(e.Name); err != nil {
							logger.Warn("watcher.add_dir_failed", "path", e.Name, "err", err)
						}
						continue
					}
				}
				if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 && AllowedExt(filepath.Ext(e.Name)) {
					pending[e.Name] = time.Now()
					if cfg.Debounce <= 0 {
						flush(time.Now(), true)
					}
				}
			case now := <-tick.C:
				flush(now, false)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher.error", "err", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

func uploadFor(root, path string) (Upload, bool) {
	if IsHidden(path) || !AllowedExt(filepath.Ext(path)) {
		return Upload{}, false
	}
	user, ok := UserFor(root, path)
	if !ok {
		return Upload{}, false
	}
	return Upload{UserID: user, Path: path}, true
}

func tickFor(debounce time.Duration) time.Duration {
	if debounce <= 0 {
		return time.Second
	}
	if t := debounce / 4; t > 10*time.Millisecond {
		return t
	}
	return 10 * time.Millisecond
}

// FileIngestor is the single-file half of Ingestor.
type FileIngestor interface {
	IngestFile(ctx context.Context, userID, path string) (Result, error)
}

// Watch ingests every settled upload until ctx ends.
func Watch(ctx context.Context, cfg WatchConfig, ing FileIngestor, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	uploads, errs, err := StartWatcher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("watcher.started", "root", cfg.Root, "debounce", cfg.Debounce)
	for {
		select {
		case u, ok := <-uploads:
			if !ok {
				return ctx.Err()
			}
			r, err := ing.IngestFile(ctx, u.UserID, u.Path)
			if err != nil {
				logger.Warn("watcher.ingest_failed", "user_id", u.UserID, "path", u.Path, "err", err)
				continue
			}
			logger.Info("watcher.ingested", "user_id", u.UserID, "path", u.Path, "outcome", r.Outcome.String())
		case err, ok := <-errs:
			if ok {
				logger.Warn("watcher.fs_error", "err", err)
			} else {
				errs = nil
			}
		}
	}
}
