package subject

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Statistics file layout. Every record is exactly RecordSize bytes so a
// subject's row can be rewritten in place while other processes tail the file.
const (
	Header     = "Mouse_ID\tentries\tent_rew\thfixes\thf_rew\n"
	HeaderSize = len(Header)
	RecordSize = 38

	maxTag     = 9_999_999_999_999
	maxCounter = 99_999
)

// ErrMalformedStats is returned when a statistics file cannot be parsed.
var ErrMalformedStats = errors.New("malformed statistics file")

// RecordOffset returns the byte offset of the record for slot.
func RecordOffset(slot int) int64 {
	return int64(HeaderSize + RecordSize*slot)
}

// FormatRecord renders the fixed-width record for s.
// It fails rather than emit a record wider than RecordSize.
func FormatRecord(s *Subject) (string, error) {
	if s.tag > maxTag {
		return "", fmt.Errorf("tag %d exceeds 13 digits", s.tag)
	}
	c := s.counts
	for _, v := range []int{c.Entries, c.EntranceRewards, c.HeadFixes, c.HeadFixRewards} {
		if v < 0 || v > maxCounter {
			return "", fmt.Errorf("subject %013d: counter %d does not fit 5 digits", s.tag, v)
		}
	}
	return fmt.Sprintf("%013d\t%05d\t%05d\t%05d\t%05d\n",
		s.tag, c.Entries, c.EntranceRewards, c.HeadFixes, c.HeadFixRewards), nil
}

// ParseRecord parses one record line, with or without its trailing newline.
func ParseRecord(line string) (uint64, Counts, error) {
	line = strings.TrimSuffix(line, "\n")
	if len(line) != RecordSize-1 {
		return 0, Counts{}, fmt.Errorf("%w: record %q has length %d", ErrMalformedStats, line, len(line)+1)
	}
	fields := strings.Split(line, "\t")
	if len(fields) != 5 || len(fields[0]) != 13 {
		return 0, Counts{}, fmt.Errorf("%w: record %q", ErrMalformedStats, line)
	}
	tag, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, Counts{}, fmt.Errorf("%w: tag %q: %v", ErrMalformedStats, fields[0], err)
	}
	var vals [4]int
	for i, f := range fields[1:] {
		if len(f) != 5 {
			return 0, Counts{}, fmt.Errorf("%w: counter %q", ErrMalformedStats, f)
		}
		v, err := strconv.Atoi(f)
		if err != nil || v < 0 {
			return 0, Counts{}, fmt.Errorf("%w: counter %q", ErrMalformedStats, f)
		}
		vals[i] = v
	}
	return tag, Counts{
		Entries:         vals[0],
		EntranceRewards: vals[1],
		HeadFixes:       vals[2],
		HeadFixRewards:  vals[3],
	}, nil
}

// ReadStats rebuilds a registry from a statistics file. Slots follow record
// order. Any malformed line, including a missing header, is an error.
func ReadStats(r io.Reader) (*Registry, error) {
	br := bufio.NewReader(r)
	head, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read stats header: %w", err)
	}
	if head != Header {
		return nil, fmt.Errorf("%w: unexpected header %q", ErrMalformedStats, head)
	}

	reg := NewRegistry()
	for {
		line, err := br.ReadString('\n')
		if line == "" && errors.Is(err, io.EOF) {
			return reg, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read stats record %d: %w", reg.Len(), err)
		}
		if !strings.HasSuffix(line, "\n") {
			return nil, fmt.Errorf("%w: record %d is truncated", ErrMalformedStats, reg.Len())
		}
		tag, counts, perr := ParseRecord(line)
		if perr != nil {
			return nil, fmt.Errorf("record %d: %w", reg.Len(), perr)
		}
		if _, aerr := reg.add(tag, counts); aerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedStats, aerr)
		}
	}
}

// WriteHeader writes the header at the start of w.
func WriteHeader(w io.WriteSeeker) error {
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek stats header: %w", err)
	}
	if _, err := io.WriteString(w, Header); err != nil {
		return fmt.Errorf("write stats header: %w", err)
	}
	return nil
}

// WriteRecord overwrites the bytes owned by s's slot and leaves the cursor at
// end of file, so a later append cannot clobber existing records.
func WriteRecord(w io.WriteSeeker, s *Subject) error {
	rec, err := FormatRecord(s)
	if err != nil {
		return err
	}
	if _, err := w.Seek(RecordOffset(s.slot), io.SeekStart); err != nil {
		return fmt.Errorf("seek record %d: %w", s.slot, err)
	}
	if _, err := io.WriteString(w, rec); err != nil {
		return fmt.Errorf("write record %d: %w", s.slot, err)
	}
	if _, err := w.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek stats end: %w", err)
	}
	return nil
}
