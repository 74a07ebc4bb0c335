// Package provision resolves the bundled model artifact to a local path the
// inference engine can open directly. Resolution happens exactly once per
// process; later calls return the cached path.
package provision

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"localchat/internal/config"
	"localchat/internal/logging"
)

// Phase reports where artifact resolution currently stands.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDownloading Phase = "downloading"
	PhaseLoading     Phase = "loading"
	PhaseReady       Phase = "ready"
	PhaseError       Phase = "error"
)

// ProgressFunc receives download progress as a fraction in [0,1].
type ProgressFunc func(fraction float64)

// Provisioner materializes one model artifact into destDir. Safe for
// concurrent use; concurrent Prepare calls share a single resolution.
type Provisioner struct {
	model      config.ModelConfig
	destDir    string
	onProgress ProgressFunc

	group singleflight.Group

	mu    sync.Mutex
	phase Phase
	path  string
}

// New creates a provisioner for the configured model. onProgress may be nil.
func New(model config.ModelConfig, destDir string, onProgress ProgressFunc) *Provisioner {
	return &Provisioner{
		model:      model,
		destDir:    destDir,
		onProgress: onProgress,
		phase:      PhaseIdle,
	}
}

// Phase returns the current resolution phase.
func (p *Provisioner) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

func (p *Provisioner) setPhase(ph Phase) {
	p.mu.Lock()
	p.phase = ph
	p.mu.Unlock()
}

// Prepare resolves the artifact and returns its local path. A second call
// within the same process returns the same path without re-resolving.
func (p *Provisioner) Prepare(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.path != "" {
		path := p.path
		p.mu.Unlock()
		return path, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do("prepare", func() (interface{}, error) {
		path, err := p.resolve(ctx)
		if err != nil {
			p.setPhase(PhaseError)
			return "", err
		}
		p.mu.Lock()
		p.path = path
		p.phase = PhaseReady
		p.mu.Unlock()
		return path, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *Provisioner) resolve(ctx context.Context) (string, error) {
	log := logging.Get(logging.CategoryProvision)
	src := p.model.Source

	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return p.download(ctx, src)
	}

	p.setPhase(PhaseLoading)
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("model asset %s: %w", src, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("model asset %s: is a directory", src)
	}

	// Already inside the data dir: use it in place.
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", fmt.Errorf("model asset %s: %w", src, err)
	}
	destAbs, err := filepath.Abs(p.destDir)
	if err == nil && strings.HasPrefix(abs, destAbs+string(filepath.Separator)) {
		log.Infof("model asset already local: %s", abs)
		return abs, nil
	}

	// Copy the bundled artifact into the data dir once.
	dest := filepath.Join(p.destDir, filepath.Base(src))
	if existing, err := os.Stat(dest); err == nil && existing.Size() == info.Size() {
		log.Infof("model asset cached: %s", dest)
		return dest, nil
	}
	if err := copyFile(src, dest); err != nil {
		return "", fmt.Errorf("model asset %s: %w", src, err)
	}
	log.Infof("model asset copied to %s (%d bytes)", dest, info.Size())
	return dest, nil
}

func (p *Provisioner) download(ctx context.Context, url string) (string, error) {
	log := logging.Get(logging.CategoryProvision)
	p.setPhase(PhaseDownloading)

	dest := filepath.Join(p.destDir, p.model.ID+".gguf")
	if info, err := os.Stat(dest); err == nil && (p.model.SizeBytes == 0 || info.Size() == p.model.SizeBytes) {
		log.Infof("model already downloaded: %s", dest)
		return dest, nil
	}

	if err := os.MkdirAll(p.destDir, 0755); err != nil {
		return "", fmt.Errorf("model asset: create %s: %w", p.destDir, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("model asset: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("model asset: download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model asset: download %s: status %d", url, resp.StatusCode)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = p.model.SizeBytes
	}

	tmp, err := os.CreateTemp(p.destDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("model asset: %w", err)
	}
	defer os.Remove(tmp.Name())

	var written int64
	buf := make([]byte, 256*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				tmp.Close()
				return "", fmt.Errorf("model asset: write: %w", werr)
			}
			written += int64(n)
			if p.onProgress != nil && total > 0 {
				p.onProgress(float64(written) / float64(total))
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			tmp.Close()
			return "", fmt.Errorf("model asset: download %s: %w", url, rerr)
		}
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("model asset: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("model asset: %w", err)
	}

	log.Infof("model downloaded to %s (%d bytes)", dest, written)
	return dest, nil
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".copy-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
