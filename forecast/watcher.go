package forecast

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"agricast/ml"
)

// A training run may touch the pointer several times in quick
// succession (tmp write, rename); reloads are coalesced.
const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the service whenever a training run swaps the
// artifact pointer, so out-of-process runs (the CLI trainer) become
// visible without an explicit reload call.
type Watcher struct {
	service *Service
	logger  *zap.SugaredLogger
	fs      *fsnotify.Watcher
	pointer string
}

func NewWatcher(service *Service, modelDir string, logger *zap.SugaredLogger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(modelDir); err != nil {
		fs.Close()
		return nil, err
	}
	return &Watcher{
		service: service,
		logger:  logger,
		fs:      fs,
		pointer: filepath.Clean(ml.CurrentPointerPath(modelDir)),
	}, nil
}

// Run blocks until ctx is cancelled or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	debounce := time.NewTimer(reloadDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.pointer {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
			}
			debounce.Reset(reloadDebounce)
			pending = true
		case <-debounce.C:
			pending = false
			w.logger.Infow("artifact pointer changed, reloading model")
			if err := w.service.Reload(); err != nil {
				w.logger.Errorw("automatic reload failed", "error", err)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorw("artifact watcher error", "error", err)
		}
	}
}
