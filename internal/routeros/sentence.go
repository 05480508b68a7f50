package routeros

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Record is one decoded reply sentence: attribute names to string values,
// exactly as the device sent them (".id", "name", "rate-limit", ...).
type Record map[string]string

// Filter is one query word. Filters in a single call are ANDed by the device.
// Op is "" for equality, "<" or ">" for the comparison query words.
type Filter struct {
	Attr  string
	Op    string
	Value string
}

// The API frames every word with a variable-length size prefix:
// one byte below 0x80, then 2/3/4 byte forms with the top bits marking the
// width. A sentence is a run of words closed by a zero-length word.

func writeLength(w *bufio.Writer, n int) error {
	switch {
	case n < 0x80:
		return w.WriteByte(byte(n))
	case n < 0x4000:
		n |= 0x8000
		if err := w.WriteByte(byte(n >> 8)); err != nil {
			return err
		}
		return w.WriteByte(byte(n))
	case n < 0x200000:
		n |= 0xC00000
		if err := w.WriteByte(byte(n >> 16)); err != nil {
			return err
		}
		if err := w.WriteByte(byte(n >> 8)); err != nil {
			return err
		}
		return w.WriteByte(byte(n))
	case n < 0x10000000:
		n |= 0xE0000000
		if err := w.WriteByte(byte(n >> 24)); err != nil {
			return err
		}
		if err := w.WriteByte(byte(n >> 16)); err != nil {
			return err
		}
		if err := w.WriteByte(byte(n >> 8)); err != nil {
			return err
		}
		return w.WriteByte(byte(n))
	default:
		return fmt.Errorf("word of %d bytes exceeds protocol limit: %w", n, ErrProtocol)
	}
}

func readLength(r *bufio.Reader) (int, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}

	switch {
	case b&0x80 == 0x00:
		return int(b), nil
	case b&0xC0 == 0x80:
		n := int(b&^0xC0) << 8
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		return n | int(b), nil
	case b&0xE0 == 0xC0:
		n := int(b &^ 0xE0)
		for i := 0; i < 2; i++ {
			b, err = r.ReadByte()
			if err != nil {
				return 0, err
			}
			n = n<<8 | int(b)
		}
		return n, nil
	case b&0xF0 == 0xE0:
		n := int(b &^ 0xF0)
		for i := 0; i < 3; i++ {
			b, err = r.ReadByte()
			if err != nil {
				return 0, err
			}
			n = n<<8 | int(b)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("reserved length prefix 0x%02X: %w", b, ErrProtocol)
	}
}

func writeWord(w *bufio.Writer, word string) error {
	if err := writeLength(w, len(word)); err != nil {
		return err
	}
	_, err := w.WriteString(word)
	return err
}

func writeSentence(w *bufio.Writer, words []string) error {
	for _, word := range words {
		if err := writeWord(w, word); err != nil {
			return err
		}
	}
	if err := w.WriteByte(0x00); err != nil {
		return err
	}
	return w.Flush()
}

func readWord(r *bufio.Reader) (string, error) {
	n, err := readLength(r)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readSentence(r *bufio.Reader) ([]string, error) {
	var words []string
	for {
		word, err := readWord(r)
		if err != nil {
			return nil, err
		}
		if word == "" {
			return words, nil
		}
		words = append(words, word)
	}
}

// reply is one full device response: zero or more !re records followed by a
// terminal !done (or a !trap carried alongside it).
type reply struct {
	records []Record
	done    Record
	trap    *TrapError
}

func parseAttrs(words []string) Record {
	rec := make(Record)
	for _, word := range words {
		if !strings.HasPrefix(word, "=") {
			continue
		}
		parts := strings.SplitN(word[1:], "=", 2)
		if len(parts) == 2 {
			rec[parts[0]] = parts[1]
		}
	}
	return rec
}

func readReply(r *bufio.Reader) (*reply, error) {
	rep := &reply{}
	for {
		words, err := readSentence(r)
		if err != nil {
			return nil, err
		}
		if len(words) == 0 {
			return nil, fmt.Errorf("empty reply sentence: %w", ErrProtocol)
		}

		switch words[0] {
		case "!re":
			rep.records = append(rep.records, parseAttrs(words[1:]))
		case "!trap":
			attrs := parseAttrs(words[1:])
			msg := attrs["message"]
			if msg == "" {
				msg = "unspecified trap"
			}
			rep.trap = &TrapError{Message: msg}
		case "!done":
			rep.done = parseAttrs(words[1:])
			return rep, nil
		case "!fatal":
			text := "connection closed by device"
			if len(words) > 1 {
				text = words[1]
			}
			return nil, fmt.Errorf("fatal reply %q: %w", text, ErrConnection)
		default:
			return nil, fmt.Errorf("unknown reply word %q: %w", words[0], ErrProtocol)
		}
	}
}
