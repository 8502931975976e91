// Package imgrec contains an image recorder used to automatically save images to disk.
package imgrec

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nasa-jpl/qhylab/generichttp"
	"github.com/nasa-jpl/qhylab/server"
	"goji.io/pat"
)

// Recorder records image sequences with incrementing filenames in yyyy-mm-dd
// subfolders.  Each Write appends to the current file; Incr moves on to the
// next one.
type Recorder struct {
	mu sync.Mutex

	// counter is the number of the file being written
	counter int

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// Enabled allows consumers to turn recording off without losing Root
	Enabled bool
}

// Active is true if the recorder is enabled and has somewhere to write
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Enabled && r.Root != ""
}

// folder returns the day folder for now and makes sure it exists
func (r *Recorder) folder() (string, error) {
	fldr := filepath.Join(r.Root, time.Now().Format("2006-01-02"))
	err := os.MkdirAll(fldr, 0777)
	return fldr, err
}

// Current returns the path of the file the next Write goes to
func (r *Recorder) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	fldr, _ := r.folder()
	return filepath.Join(fldr, fmt.Sprintf("%s%06d.fits", r.Prefix, r.counter))
}

// Write implements io.Writer and writes the contents of a fits file to disk
func (r *Recorder) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fldr, err := r.folder()
	if err != nil {
		return 0, err
	}
	fn := filepath.Join(fldr, fmt.Sprintf("%s%06d.fits", r.Prefix, r.counter))
	fid, err := os.OpenFile(fn, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0666)
	if err != nil {
		return 0, err
	}
	defer fid.Close()
	return fid.Write(p)
}

// Incr updates the filename counter to one past the highest numbered file in
// today's folder.  If the folder cannot be read the counter is not changed.
func (r *Recorder) Incr() {
	r.mu.Lock()
	defer r.mu.Unlock()
	dn, err := r.folder()
	if err != nil {
		return
	}
	files, err := os.ReadDir(dn)
	if err != nil {
		return
	}
	count := -1
	for _, file := range files {
		// skip directories, non-fits, and wrong prefix
		fn := file.Name()
		if file.IsDir() || !strings.HasSuffix(fn, ".fits") || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		bit := strings.TrimSuffix(strings.TrimPrefix(fn, r.Prefix), ".fits")
		n, err := strconv.Atoi(bit)
		if err != nil {
			continue
		}
		if count < n {
			count = n
		}
	}
	r.counter = count + 1
}

// HTTPWrapper is an HTTP wrapper around an image recorder that allows the folder and prefix to be changed on the fly
//
// it offers an Inject method allowing it to be injected into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

// SetRoot updates the root folder of the recorder and makes sure it can be written
func (h HTTPWrapper) SetRoot(root string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.Root
	h.Root = root
	if _, err := h.folder(); err != nil {
		h.Root = prev
		return err
	}
	h.counter = 0
	return nil
}

// GetRoot returns the recorder's root folder
func (h HTTPWrapper) GetRoot() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Root, nil
}

// SetPrefix updates the filename prefix of the recorder
func (h HTTPWrapper) SetPrefix(prefix string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Prefix = prefix
	h.counter = 0
	return nil
}

// GetPrefix returns the recorder's prefix
func (h HTTPWrapper) GetPrefix() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Prefix, nil
}

// GetEnabled returns the Recorder's Enabled field
func (h HTTPWrapper) GetEnabled() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Enabled, nil
}

// SetEnabled sets the recorder's Enabled field
func (h HTTPWrapper) SetEnabled(b bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Enabled = b
	return nil
}

// Inject adds GET and POST routes for /autowrite/root, /autowrite/prefix and
// /autowrite/enabled to the HTTPer which manipulate this wrapper's recorder
func (h HTTPWrapper) Inject(other server.HTTPer) {
	rt := other.RT()
	rt[pat.Post("/autowrite/root")] = generichttp.SetString(h.SetRoot)
	rt[pat.Get("/autowrite/root")] = generichttp.GetString(h.GetRoot)
	rt[pat.Post("/autowrite/prefix")] = generichttp.SetString(h.SetPrefix)
	rt[pat.Get("/autowrite/prefix")] = generichttp.GetString(h.GetPrefix)
	rt[pat.Post("/autowrite/enabled")] = generichttp.SetBool(h.SetEnabled)
	rt[pat.Get("/autowrite/enabled")] = generichttp.GetBool(h.GetEnabled)
}
