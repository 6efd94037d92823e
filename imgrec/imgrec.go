// Package imgrec contains an image recorder used to automatically save images to disk.
package imgrec

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slmsuite/hardware/generichttp"
)

// Recorder records image sequences with incrementing filenames in yyyy-mm-dd
// subfolders, <Root>/2006-01-02/<Prefix>000042.<Ext>.  Writes go to the
// current file until Incr is called.  It is safe for concurrent use once
// constructed.
type Recorder struct {
	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// Ext is the file extension without the dot, fits if empty
	Ext string

	// Enabled is a flag unused by this struct that allows consumers to disable its use in their code
	Enabled bool

	mu      sync.Mutex
	counter int
	fldr    string // the dated folder the counter belongs to
	now     func() time.Time
}

func (r *Recorder) ext() string {
	if r.Ext == "" {
		return "fits"
	}
	return r.Ext
}

func (r *Recorder) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// folder returns today's folder, rescanning the counter when the day or root
// changed
func (r *Recorder) folder() (string, error) {
	fldr := filepath.Join(r.Root, r.clock().Format("2006-01-02"))
	if fldr == r.fldr {
		return fldr, nil
	}
	err := os.MkdirAll(fldr, 0777)
	if err != nil {
		return "", err
	}
	n, err := r.scan(fldr)
	if err != nil {
		return "", err
	}
	r.fldr = fldr
	r.counter = n
	return fldr, nil
}

// scan returns one more than the highest index of our files in fldr, or 0
func (r *Recorder) scan(fldr string) (int, error) {
	entries, err := os.ReadDir(fldr)
	if err != nil {
		return 0, err
	}
	suffix := "." + r.ext()
	next := 0
	for _, e := range entries {
		// skip directories, other extensions, and other prefixes
		if e.IsDir() {
			continue
		}
		fn := e.Name()
		if !strings.HasSuffix(fn, suffix) || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		bit := strings.TrimSuffix(strings.TrimPrefix(fn, r.Prefix), suffix)
		n, err := strconv.Atoi(bit)
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next, nil
}

// Path returns the file the next Write goes to
func (r *Recorder) Path() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path()
}

func (r *Recorder) path() (string, error) {
	fldr, err := r.folder()
	if err != nil {
		return "", err
	}
	return filepath.Join(fldr, fmt.Sprintf("%s%06d.%s", r.Prefix, r.counter, r.ext())), nil
}

// Write implements io.Writer and appends p to the current file
func (r *Recorder) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, err := r.path()
	if err != nil {
		return 0, err
	}
	fid, err := os.OpenFile(fn, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return 0, err
	}
	defer fid.Close()
	return fid.Write(p)
}

// Incr moves on to the next file
func (r *Recorder) Incr() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
}

// Active returns true if the recorder is enabled and has a root folder
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Enabled && r.Root != ""
}

// SetRoot changes the root folder, creating it if needed.  An empty root
// deactivates the recorder.
func (r *Recorder) SetRoot(root string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Root = root
	r.fldr = ""
	if root == "" {
		return nil
	}
	_, err := r.folder()
	return err
}

// SetPrefix changes the filename prefix
func (r *Recorder) SetPrefix(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Prefix = prefix
	r.fldr = ""
}

// SetEnabled changes the Enabled flag
func (r *Recorder) SetEnabled(b bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Enabled = b
}

// Settings returns the root, prefix and enabled flag
func (r *Recorder) Settings() (root, prefix string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Root, r.Prefix, r.Enabled
}

// HTTPWrapper is an HTTP wrapper around an image recorder that allows the folder and prefix to be changed on the fly
//
// it does not implement generichttp.HTTPer, offering an Inject method allowing it to be injected
// into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

// HTTPSetRoot updates the root folder of the recorder
func (h HTTPWrapper) HTTPSetRoot(w http.ResponseWriter, r *http.Request) {
	str := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.Recorder.SetRoot(str.Str)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPGetRoot gets the recorder's root folder and sends it back as JSON
func (h HTTPWrapper) HTTPGetRoot(w http.ResponseWriter, r *http.Request) {
	root, _, _ := h.Settings()
	hp := generichttp.HumanPayload{T: types.String, String: root}
	hp.EncodeAndRespond(w, r)
}

// HTTPSetPrefix updates the filename prefix of the recorder
func (h HTTPWrapper) HTTPSetPrefix(w http.ResponseWriter, r *http.Request) {
	str := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Recorder.SetPrefix(str.Str)
	w.WriteHeader(http.StatusOK)
}

// HTTPGetPrefix gets the recorder's prefix and sends it back as JSON
func (h HTTPWrapper) HTTPGetPrefix(w http.ResponseWriter, r *http.Request) {
	_, prefix, _ := h.Settings()
	hp := generichttp.HumanPayload{T: types.String, String: prefix}
	hp.EncodeAndRespond(w, r)
}

// HTTPGetEnabled returns the Recorder's Enabled field
func (h HTTPWrapper) HTTPGetEnabled(w http.ResponseWriter, r *http.Request) {
	_, _, en := h.Settings()
	hp := generichttp.HumanPayload{T: types.Bool, Bool: en}
	hp.EncodeAndRespond(w, r)
}

// HTTPSetEnabled sets the recorder's Enabled field
func (h HTTPWrapper) HTTPSetEnabled(w http.ResponseWriter, r *http.Request) {
	bT := generichttp.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&bT)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Recorder.SetEnabled(bT.Bool)
	w.WriteHeader(http.StatusOK)
}

// Inject adds GET and POST routes for /autowrite/root, /autowrite/prefix and
// /autowrite/enabled to the route table
func (h HTTPWrapper) Inject(rt generichttp.RouteTable) {
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = h.HTTPSetRoot
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = h.HTTPGetRoot
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = h.HTTPSetPrefix
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = h.HTTPGetPrefix
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = h.HTTPSetEnabled
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = h.HTTPGetEnabled
}
