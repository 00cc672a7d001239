package main

import (
	"fmt"
	"io"
	"sync"

	"souschef/internal/domain"
)

// printer is the terminal ports.EventSink. It prints a section only when its
// rendering changes, so the one-second tick does not flood the terminal.
type printer struct {
	mu   sync.Mutex
	out  io.Writer
	last map[string]string
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, last: map[string]string{}}
}

func (p *printer) ViewChanged(view domain.SessionView) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range renderSections(view) {
		if p.last[s.name] == s.text {
			continue
		}
		p.last[s.name] = s.text
		if s.text != "" {
			fmt.Fprintln(p.out, s.text)
		}
	}
}

func (p *printer) SessionError(code domain.ErrorCode, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, errorStyle.Render(fmt.Sprintf("[%s] %s", code, detail)))
}

func (p *printer) Println(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, text)
}
