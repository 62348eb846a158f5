package ocr

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

var ErrOCRUnavailable = errors.New("ocr engine unavailable")

// Word is one recognized word with its tesseract confidence in [0,100].
type Word struct {
	Text       string
	Confidence float64
	Block      int
	Paragraph  int
	Line       int
}

// Runner recognizes the text of one image file.
type Runner interface {
	Recognize(ctx context.Context, imagePath string) ([]Word, error)
}

type Tesseract struct {
	Bin       string
	Languages string
}

func (t *Tesseract) bin() string {
	if t.Bin == "" {
		return "tesseract"
	}
	return t.Bin
}

// Available checks that the tesseract binary can be found.
func (t *Tesseract) Available() error {
	if _, err := exec.LookPath(t.bin()); err != nil {
		return fmt.Errorf("%w: %v", ErrOCRUnavailable, err)
	}
	return nil
}

func (t *Tesseract) Recognize(ctx context.Context, imagePath string) ([]Word, error) {
	args := []string{imagePath, "stdout"}
	if t.Languages != "" {
		args = append(args, "-l", t.Languages)
	}
	args = append(args, "tsv")

	cmd := exec.CommandContext(ctx, t.bin(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return ParseTSV(&stdout)
}

// ParseTSV reads tesseract's TSV output and returns word-level rows.
func ParseTSV(r io.Reader) ([]Word, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var words []Word
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			first = false
			if strings.HasPrefix(line, "level") {
				continue
			}
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil {
			continue
		}
		block, _ := strconv.Atoi(cols[2])
		par, _ := strconv.Atoi(cols[3])
		ln, _ := strconv.Atoi(cols[4])
		words = append(words, Word{Text: text, Confidence: conf, Block: block, Paragraph: par, Line: ln})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tsv: %w", err)
	}
	return words, nil
}

// JoinWords keeps words at or above minConfidence (a fraction) and rebuilds lines.
func JoinWords(words []Word, minConfidence float64) string {
	threshold := minConfidence * 100
	var b strings.Builder
	type lineKey struct{ block, par, line int }
	var prev *lineKey
	for _, w := range words {
		if w.Confidence < threshold {
			continue
		}
		key := lineKey{w.Block, w.Paragraph, w.Line}
		switch {
		case prev == nil:
		case *prev != key:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
		b.WriteString(w.Text)
		prev = &key
	}
	return b.String()
}
