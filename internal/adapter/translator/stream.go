package translator

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/thushan/flowgate/internal/core/domain"
)

const (
	streamScanInitial = 64 * 1024
	streamScanMax     = 1024 * 1024
)

// TranslateStream relays an upstream stream in the source dialect as the
// target dialect, one line at a time, flushing after every frame written.
// Nothing beyond the current line is held in memory except the final done
// chunk, which waits for end of stream so a trailing usage frame can be
// folded into it.
func (r *Registry) TranslateStream(ctx context.Context, source, target domain.Dialect, kind domain.RequestKind,
	upstream io.Reader, w io.Writer, flush func() error) error {
	src, err := r.Codec(source)
	if err != nil {
		return domain.NewTransformationError(source, target, StageStream, kind.String(), nil, err)
	}
	tgt, err := r.Codec(target)
	if err != nil {
		return domain.NewTransformationError(source, target, StageStream, kind.String(), nil, err)
	}

	st := &streamTranslator{
		ctx:    ctx,
		src:    src,
		tgt:    tgt,
		kind:   kind,
		w:      w,
		flush:  flush,
		prefix: "cmpl-",
	}
	if kind == domain.KindChat {
		st.prefix = "chatcmpl-"
	}
	return st.run(upstream)
}

type streamTranslator struct {
	ctx     context.Context
	src     Codec
	tgt     Codec
	w       io.Writer
	flush   func() error
	pending *domain.StreamChunk
	usage   *domain.Usage
	kind    domain.RequestKind
	prefix  string
	id      string
}

func (st *streamTranslator) fail(err error, payload []byte) error {
	return domain.NewTransformationError(st.src.Dialect(), st.tgt.Dialect(), StageStream, st.kind.String(), payload, err)
}

func (st *streamTranslator) run(upstream io.Reader) error {
	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 0, streamScanInitial), streamScanMax)

	for scanner.Scan() {
		if err := st.ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		chunks, end, err := st.src.DecodeStreamLine(st.kind, line)
		if err != nil {
			return st.fail(err, append([]byte(nil), line...))
		}
		for i := range chunks {
			if err := st.accept(chunks[i]); err != nil {
				return err
			}
		}
		if end {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := st.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("reading upstream stream: %w", err)
	}
	if err := st.ctx.Err(); err != nil {
		return err
	}
	if st.pending == nil {
		return st.fail(fmt.Errorf("stream ended before completion: %w", io.ErrUnexpectedEOF), nil)
	}

	final := *st.pending
	if final.Usage == nil {
		final.Usage = st.usage
	}
	if err := st.write(final); err != nil {
		return err
	}
	if end := st.tgt.EncodeStreamEnd(); len(end) > 0 {
		if _, err := st.w.Write(end); err != nil {
			return err
		}
	}
	return st.flush()
}

func (st *streamTranslator) accept(chunk domain.StreamChunk) error {
	if st.id == "" {
		st.id = idOr(chunk.ID, st.prefix)
	}
	chunk.ID = st.id

	if chunk.Usage != nil {
		usage := *chunk.Usage
		st.usage = &usage
	}

	if st.pending != nil {
		// after the finish frame only usage is expected
		if chunk.Usage != nil && st.pending.Usage == nil {
			st.pending.Usage = st.usage
		}
		return nil
	}
	if chunk.Done {
		st.pending = &chunk
		return nil
	}
	if chunk.Content == "" && chunk.Role == "" {
		return nil
	}
	if err := st.write(chunk); err != nil {
		return err
	}
	return st.flush()
}

func (st *streamTranslator) write(chunk domain.StreamChunk) error {
	frame, err := st.tgt.EncodeStreamChunk(st.kind, chunk)
	if err != nil {
		return st.fail(err, nil)
	}
	_, err = st.w.Write(frame)
	return err
}
