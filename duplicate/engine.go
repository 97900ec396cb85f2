// Package duplicate finds byte-identical files with a chunked N-way comparison.
//
// Candidates that share a fingerprint are read chunk by chunk in lock step.
// When their bytes diverge, the group is partitioned by the byte value at the
// first divergent offset and every partition of two or more continues from
// just after that offset. Because a partition inherits the bytes its members
// already read, no file is ever read past the chunk where it split from all
// of its peers, and no byte range is read twice.
package duplicate

import (
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/lexandro/assetindex-mcp/asset"
	"golang.org/x/time/rate"
)

// DefaultChunkSize is the number of bytes read per candidate per step.
const DefaultChunkSize = 10 * 1024

// Opener opens a record's content for sequential reading.
type Opener func(rec *asset.Record) (io.ReadCloser, error)

// Group is a confirmed set of byte-identical records.
type Group struct {
	SizeBytes int64
	Records   []*asset.Record
}

// Wasted returns the bytes that would be freed by keeping one copy.
func (g Group) Wasted() int64 {
	return g.SizeBytes * int64(len(g.Records)-1)
}

// Callbacks are invoked from Step, on the goroutine that drives the engine.
type Callbacks struct {
	OnProgress   func(done, total int64)
	OnGroupFound func(Group)
	OnComplete   func([]Group)
	// OnAbort fires instead of OnComplete when the scan is stopped or
	// replaced by another Start before it finishes.
	OnAbort func()
}

// Options configures an Engine.
type Options struct {
	ChunkSize int
	// Limiter caps bytes read per second. Nil means unlimited.
	Limiter *rate.Limiter
	Logger  *slog.Logger
	Now     func() time.Time
}

type candidate struct {
	rec    *asset.Record
	stream io.ReadCloser
	buf    []byte
}

func (c *candidate) close() {
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
}

// head is a live group of candidates believed identical from chunkIndex*chunkSize+from onward.
type head struct {
	candidates []*candidate
	chunkIndex int
	fileSize   int64
	loaded     bool // candidates' buffers hold chunkIndex
	from       int  // first offset within the chunk still to compare
}

// chunkLen is the byte length of the head's current chunk.
func (h *head) chunkLen(chunkSize int) int {
	remaining := h.fileSize - int64(h.chunkIndex)*int64(chunkSize)
	return int(min(remaining, int64(chunkSize)))
}

// Engine runs one duplicate scan at a time. It is a scheduler worker: each
// Step processes one chunk of one head. It is not safe for concurrent use.
type Engine struct {
	open      Opener
	chunkSize int
	limiter   *rate.Limiter
	logger    *slog.Logger
	now       func() time.Time

	queue     []*head
	results   []Group
	callbacks Callbacks
	running   bool

	totalBytes int64
	doneBytes  int64
	readBytes  map[asset.ID]int64
	errors     int
}

// NewEngine creates an idle engine.
func NewEngine(open Opener, opts Options) *Engine {
	e := &Engine{
		open:      open,
		chunkSize: opts.ChunkSize,
		limiter:   opts.Limiter,
		logger:    opts.Logger,
		now:       opts.Now,
		readBytes: make(map[asset.ID]int64),
	}
	if e.chunkSize <= 0 {
		e.chunkSize = DefaultChunkSize
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Start discards any previous scan and begins comparing the given groups.
// Each group must hold records of the same size; groups of fewer than two
// records are ignored.
func (e *Engine) Start(groups [][]*asset.Record, cb Callbacks) {
	e.Stop()
	e.callbacks = cb
	e.results = nil
	e.readBytes = make(map[asset.ID]int64)
	e.totalBytes, e.doneBytes, e.errors = 0, 0, 0
	e.running = true

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		size := group[0].SizeBytes
		if size == 0 {
			e.confirm(Group{SizeBytes: 0, Records: append([]*asset.Record(nil), group...)})
			continue
		}
		h := &head{fileSize: size}
		for _, rec := range group {
			h.candidates = append(h.candidates, &candidate{rec: rec})
		}
		e.totalBytes += size * int64(len(group))
		e.queue = append(e.queue, h)
	}

	e.logger.Debug("duplicate scan started", "heads", len(e.queue), "bytes", e.totalBytes)
	e.reportProgress()
	if len(e.queue) == 0 {
		e.finish()
	}
}

// Pending reports whether any head is still being compared.
func (e *Engine) Pending() bool {
	return e.running && len(e.queue) > 0
}

// Running reports whether a scan is in progress.
func (e *Engine) Running() bool {
	return e.running
}

// Step processes one chunk of the head at the front of the queue.
func (e *Engine) Step() {
	if !e.Pending() {
		return
	}
	h := e.queue[0]
	e.queue = e.queue[1:]

	if !h.loaded {
		n := h.chunkLen(e.chunkSize)
		if !e.allowRead(n * len(h.candidates)) {
			// Out of IO budget: keep the head for a later step.
			e.queue = append(e.queue, h)
			return
		}
		e.readChunk(h, n)
	}

	e.compare(h)
	e.reportProgress()
	if len(e.queue) == 0 {
		e.finish()
	}
}

func (e *Engine) allowRead(n int) bool {
	if e.limiter == nil {
		return true
	}
	if burst := e.limiter.Burst(); n > burst {
		n = burst
	}
	return e.limiter.AllowN(e.now(), n)
}

// readChunk fills every candidate's buffer with the head's current chunk.
// Candidates whose stream fails are closed and dropped.
func (e *Engine) readChunk(h *head, n int) {
	kept := h.candidates[:0]
	for _, c := range h.candidates {
		if err := e.readInto(c, n); err != nil {
			e.errors++
			e.logger.Debug("dropping duplicate candidate",
				"path", c.rec.Path,
				"error", asset.NewError(asset.ErrStreamError, "read chunk", err).WithRecord(c.rec.ID, c.rec.Path),
			)
			e.retire(c, h)
			continue
		}
		kept = append(kept, c)
	}
	h.candidates = kept
	h.loaded = true
	h.from = 0
}

func (e *Engine) readInto(c *candidate, n int) error {
	if c.stream == nil {
		stream, err := e.open(c.rec)
		if err != nil {
			return err
		}
		c.stream = stream
	}
	if cap(c.buf) < n {
		c.buf = make([]byte, n)
	}
	c.buf = c.buf[:n]
	read, err := io.ReadFull(c.stream, c.buf)
	e.readBytes[c.rec.ID] += int64(read)
	return err
}

// compare runs the divergence scan on a loaded head and either advances it,
// confirms it, or splits it.
func (e *Engine) compare(h *head) {
	if len(h.candidates) <= 1 {
		e.kill(h)
		return
	}

	ref := h.candidates[len(h.candidates)-1].buf
	diverge := -1
	limit := len(ref)
	for _, c := range h.candidates[:len(h.candidates)-1] {
		for i := h.from; i < limit; i++ {
			if c.buf[i] != ref[i] {
				diverge = i
				limit = i
				break
			}
		}
	}

	if diverge < 0 {
		h.chunkIndex++
		h.loaded = false
		h.from = 0
		if int64(h.chunkIndex)*int64(e.chunkSize) >= h.fileSize {
			records := make([]*asset.Record, 0, len(h.candidates))
			for _, c := range h.candidates {
				c.close()
				records = append(records, c.rec)
			}
			e.doneBytes += h.fileSize * int64(len(h.candidates))
			e.confirm(Group{SizeBytes: h.fileSize, Records: records})
			return
		}
		e.queue = append(e.queue, h)
		return
	}

	// Partition every candidate by its byte at the divergence offset, keeping order.
	var order []byte
	parts := make(map[byte][]*candidate)
	for _, c := range h.candidates {
		b := c.buf[diverge]
		if _, ok := parts[b]; !ok {
			order = append(order, b)
		}
		parts[b] = append(parts[b], c)
	}
	for _, b := range order {
		members := parts[b]
		if len(members) == 1 {
			e.retire(members[0], h)
			continue
		}
		e.queue = append(e.queue, &head{
			candidates: members,
			chunkIndex: h.chunkIndex,
			fileSize:   h.fileSize,
			loaded:     true,
			from:       diverge + 1,
		})
	}
}

// kill discards a head that can no longer produce a duplicate set.
func (e *Engine) kill(h *head) {
	for _, c := range h.candidates {
		e.retire(c, h)
	}
	h.candidates = nil
}

// retire closes a candidate. Its whole file counts as done for progress,
// since none of its remaining bytes will be read.
func (e *Engine) retire(c *candidate, h *head) {
	c.close()
	c.buf = nil
	e.doneBytes += h.fileSize
}

func (e *Engine) confirm(g Group) {
	e.results = append(e.results, g)
	if e.callbacks.OnGroupFound != nil {
		e.callbacks.OnGroupFound(g)
	}
}

func (e *Engine) reportProgress() {
	if e.callbacks.OnProgress != nil {
		e.callbacks.OnProgress(min(e.doneBytes, e.totalBytes), e.totalBytes)
	}
}

func (e *Engine) finish() {
	e.running = false
	sortGroups(e.results)
	e.logger.Debug("duplicate scan complete", "groups", len(e.results), "streamErrors", e.errors)
	if e.callbacks.OnComplete != nil {
		e.callbacks.OnComplete(e.results)
	}
}

// Stop aborts the scan, closing every open stream. No completion callback
// fires; a scan that was still running gets OnAbort.
func (e *Engine) Stop() {
	for _, h := range e.queue {
		for _, c := range h.candidates {
			c.close()
		}
	}
	e.queue = nil
	wasRunning := e.running
	e.running = false
	abort := e.callbacks.OnAbort
	e.callbacks = Callbacks{}
	if wasRunning && abort != nil {
		abort()
	}
}

// Results returns the confirmed groups of the last scan, largest files first.
func (e *Engine) Results() []Group {
	return e.results
}

// Progress returns bytes accounted for and total bytes of the current scan.
func (e *Engine) Progress() (done, total int64) {
	return min(e.doneBytes, e.totalBytes), e.totalBytes
}

// ReadBytes returns how many content bytes were read for id in the last scan.
func (e *Engine) ReadBytes(id asset.ID) int64 {
	return e.readBytes[id]
}

// StreamErrors returns how many candidates were dropped for I/O failures.
func (e *Engine) StreamErrors() int {
	return e.errors
}

func sortGroups(groups []Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].SizeBytes != groups[j].SizeBytes {
			return groups[i].SizeBytes > groups[j].SizeBytes
		}
		return firstPath(groups[i]) < firstPath(groups[j])
	})
}

func firstPath(g Group) string {
	if len(g.Records) == 0 {
		return ""
	}
	return g.Records[0].Path
}
