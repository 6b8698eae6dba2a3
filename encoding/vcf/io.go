package vcf

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Source yields records in non-decreasing (RID, Pos) order, per spec.md
// §2's Record Source contract.
type Source interface {
	Header() *Header
	// Read returns the next record, or io.EOF once the stream is exhausted.
	Read() (*Record, error)
	Close() error
}

// Sink accepts a header (written once, before the first record) followed
// by zero or more records.
type Sink interface {
	WriteHeader(*Header) error
	Write(*Record) error
	Close() error
}

// Reader is the file-backed Source implementation: a line-oriented,
// VCF-text-like stream. It is intentionally minimal, since the real
// binary columnar codec this stands in for is out of scope (spec.md §1).
type Reader struct {
	hdr    *Header
	sc     *bufio.Scanner
	closer io.Closer
	lineNo int
	path   string
}

// NewReader opens path (transparently gzip-decompressing a ".gz" suffix,
// matching the teacher's interval package's use of klauspost/compress for
// BED/FASTA input) and parses its header.
func NewReader(ctx context.Context, path string) (*Reader, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "vcf: opening %s", path)
	}
	var rc io.ReadCloser = struct {
		io.Reader
		io.Closer
	}{f.Reader(ctx), fileCloser{f, ctx}}
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, errors.Wrapf(err, "vcf: gzip header %s", path)
		}
		rc = struct {
			io.Reader
			io.Closer
		}{gz, multiCloser{gz, rc}}
	}
	r := &Reader{sc: bufio.NewScanner(rc), closer: rc, path: path}
	r.sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	if err := r.readHeader(); err != nil {
		rc.Close()
		return nil, err
	}
	return r, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type fileCloser struct {
	f   file.File
	ctx context.Context
}

func (c fileCloser) Close() error { return c.f.Close(c.ctx) }

type multiCloser struct {
	gz  io.Closer
	out io.Closer
}

func (c multiCloser) Close() error {
	e1 := c.gz.Close()
	e2 := c.out.Close()
	if e1 != nil {
		return e1
	}
	return e2
}

func (r *Reader) readHeader() error {
	h := NewHeader()
	for r.sc.Scan() {
		r.lineNo++
		line := r.sc.Text()
		if strings.HasPrefix(line, "##") {
			parseMetaLine(h, line)
			continue
		}
		if strings.HasPrefix(line, "#CHROM") {
			cols := strings.Split(line, "\t")
			if len(cols) > 9 {
				h.Samples = append(h.Samples, cols[9:]...)
			}
			r.hdr = h
			return nil
		}
		return fmt.Errorf("vcf: %s:%d: expected header, got data line before #CHROM", r.path, r.lineNo)
	}
	if err := r.sc.Err(); err != nil {
		return errors.Wrapf(err, "vcf: reading header of %s", r.path)
	}
	return fmt.Errorf("vcf: %s: missing #CHROM header line", r.path)
}

func parseMetaLine(h *Header, line string) {
	body := strings.TrimPrefix(line, "##")
	eq := strings.IndexByte(body, '=')
	if eq < 0 {
		h.Extra = append(h.Extra, line)
		return
	}
	key, val := body[:eq], body[eq+1:]
	switch key {
	case "contig":
		if id := extractTag(val, "ID"); id != "" {
			h.ContigID(id)
		}
	case "FILTER":
		h.AddFilter(extractTag(val, "ID"), extractTag(val, "Description"))
	case "INFO":
		h.AddInfo(extractTag(val, "ID"), extractTag(val, "Number"), extractTag(val, "Type"), extractTag(val, "Description"))
	case "FORMAT":
		h.AddFormat(extractTag(val, "ID"), extractTag(val, "Number"), extractTag(val, "Type"), extractTag(val, "Description"))
	default:
		h.Extra = append(h.Extra, line)
	}
}

// extractTag pulls KEY=value out of a "<KEY=value,KEY2=value2>" structured
// header field body. It's a small hand-rolled scanner rather than a
// regexp, matching the teacher's preference (interval/bedunion.go's
// getTokens) for avoiding regexp on the hot parsing path.
func extractTag(body, tag string) string {
	body = strings.TrimPrefix(body, "<")
	body = strings.TrimSuffix(body, ">")
	depth := 0
	start := 0
	fields := []string{}
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '"':
			depth ^= 1
		case ',':
			if depth == 0 {
				fields = append(fields, body[start:i])
				start = i + 1
			}
		}
	}
	fields = append(fields, body[start:])
	prefix := tag + "="
	for _, f := range fields {
		if strings.HasPrefix(f, prefix) {
			return strings.Trim(f[len(prefix):], `"`)
		}
	}
	return ""
}

// Header returns the parsed header.
func (r *Reader) Header() *Header { return r.hdr }

// Read parses the next data line into a Record.
func (r *Reader) Read() (*Record, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return nil, errors.Wrapf(err, "vcf: reading %s", r.path)
		}
		return nil, io.EOF
	}
	r.lineNo++
	return r.parseRecord(r.sc.Text())
}

func (r *Reader) parseRecord(line string) (*Record, error) {
	cols := strings.Split(line, "\t")
	if len(cols) < 8 {
		return nil, fmt.Errorf("vcf: %s:%d: too few columns (%d)", r.path, r.lineNo, len(cols))
	}
	rec := NewRecord()
	rec.RID = r.hdr.ContigID(cols[0])
	pos, err := strconv.Atoi(cols[1])
	if err != nil {
		return nil, fmt.Errorf("vcf: %s:%d: bad POS %q", r.path, r.lineNo, cols[1])
	}
	rec.Pos = pos
	rec.ID = cols[2]
	rec.Ref = cols[3]
	if cols[4] != "." {
		rec.Alt = strings.Split(cols[4], ",")
	}
	if cols[5] != "." {
		if q, err := strconv.ParseFloat(cols[5], 64); err == nil {
			rec.SetQual(q)
		}
	}
	if cols[6] != "." && cols[6] != "PASS" {
		for _, f := range strings.Split(cols[6], ";") {
			rec.AddFilter(f)
		}
	}
	if len(cols) > 7 && cols[7] != "." {
		for _, kv := range strings.Split(cols[7], ";") {
			if kv == "" {
				continue
			}
			if eq := strings.IndexByte(kv, '='); eq >= 0 {
				rec.setInfoRaw(kv[:eq], kv[eq+1:])
			} else {
				rec.SetInfoFlag(kv)
			}
		}
	}
	if len(cols) > 9 {
		formatKeys := strings.Split(cols[8], ":")
		rec.formatKeys = formatKeys
		for _, sampleCol := range cols[9:] {
			rec.samples = append(rec.samples, strings.Split(sampleCol, ":"))
		}
	}
	return rec, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.closer.Close() }

// Writer is the file-backed Sink implementation.
type Writer struct {
	w      io.Writer
	closer io.Closer
	hdr    *Header
}

// NewWriter opens path for writing ("-" means stdout, a ".gz" suffix
// gzip-compresses transparently).
func NewWriter(ctx context.Context, path string) (*Writer, error) {
	if path == "" || path == "-" {
		return &Writer{w: os.Stdout, closer: nopCloser{}}, nil
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "vcf: creating %s", path)
	}
	var w io.Writer = f.Writer(ctx)
	closer := io.Closer(fileCloser{f, ctx})
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(w)
		w = gz
		closer = multiCloser{gz, closer}
	}
	return &Writer{w: w, closer: closer}, nil
}

// WriteHeader serializes h as VCF-style meta and #CHROM lines.
func (w *Writer) WriteHeader(h *Header) error {
	w.hdr = h
	for _, line := range h.Extra {
		if _, err := fmt.Fprintln(w.w, line); err != nil {
			return err
		}
	}
	for _, c := range h.Contigs {
		if _, err := fmt.Fprintf(w.w, "##contig=<ID=%s>\n", c); err != nil {
			return err
		}
	}
	for _, f := range h.Filters {
		if _, err := fmt.Fprintf(w.w, "##FILTER=<ID=%s,Description=%q>\n", f.ID, f.Description); err != nil {
			return err
		}
	}
	for _, f := range h.Infos {
		if _, err := fmt.Fprintf(w.w, "##INFO=<ID=%s,Number=%s,Type=%s,Description=%q>\n", f.ID, f.Number, f.Type, f.Description); err != nil {
			return err
		}
	}
	for _, f := range h.Formats {
		if _, err := fmt.Fprintf(w.w, "##FORMAT=<ID=%s,Number=%s,Type=%s,Description=%q>\n", f.ID, f.Number, f.Type, f.Description); err != nil {
			return err
		}
	}
	cols := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO"
	if len(h.Samples) > 0 {
		cols += "\tFORMAT\t" + strings.Join(h.Samples, "\t")
	}
	_, err := fmt.Fprintln(w.w, cols)
	return err
}

// Write serializes a single record as a tab-delimited VCF data line.
func (w *Writer) Write(r *Record) error {
	qual := "."
	if r.hasQual {
		qual = strconv.FormatFloat(r.Qual, 'g', -1, 64)
	}
	filter := "PASS"
	if len(r.filters) > 0 {
		filter = strings.Join(r.filters, ";")
	}
	info := "."
	if len(r.infoKeys) > 0 {
		parts := make([]string, len(r.infoKeys))
		for i, k := range r.infoKeys {
			if r.infoVals[i] == "" {
				parts[i] = k
			} else {
				parts[i] = k + "=" + r.infoVals[i]
			}
		}
		info = strings.Join(parts, ";")
	}
	id := r.ID
	if id == "" {
		id = "."
	}
	chrom := r.Chrom(w.hdr)
	_, err := fmt.Fprintf(w.w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s", chrom, r.Pos, id, r.Ref, r.AltString(), qual, filter, info)
	if err != nil {
		return err
	}
	if len(r.formatKeys) > 0 {
		if _, err := fmt.Fprintf(w.w, "\t%s", strings.Join(r.formatKeys, ":")); err != nil {
			return err
		}
		for _, row := range r.samples {
			if _, err := fmt.Fprintf(w.w, "\t%s", strings.Join(row, ":")); err != nil {
				return err
			}
		}
	}
	_, err = fmt.Fprintln(w.w)
	return err
}

// Close flushes and closes the underlying writer.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
