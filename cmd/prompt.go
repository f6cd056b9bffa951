package main

import (
	"errors"
	"io"

	"github.com/charmbracelet/huh"
)

type prompter interface {
	Confirm(title string) (bool, error)
	Select(title string, options []string) (int, error)
}

type huhPrompter struct {
	in  io.Reader
	out io.Writer
}

func newHuhPrompter(in io.Reader, out io.Writer) huhPrompter {
	return huhPrompter{in: in, out: out}
}

func (p huhPrompter) run(field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field)).
		WithTheme(huh.ThemeDracula()).
		WithInput(p.in).
		WithOutput(p.out)
	return form.Run()
}

// Confirm asks a yes/no question. Aborting the prompt counts as no.
func (p huhPrompter) Confirm(title string) (bool, error) {
	var ok bool
	err := p.run(huh.NewConfirm().
		Title(title).
		Affirmative("Sí").
		Negative("No").
		Value(&ok))
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

// Select returns the index of the chosen option, or -1 when aborted.
func (p huhPrompter) Select(title string, options []string) (int, error) {
	opts := make([]huh.Option[int], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o, i)
	}
	choice := -1
	err := p.run(huh.NewSelect[int]().
		Title(title).
		Options(opts...).
		Value(&choice))
	if errors.Is(err, huh.ErrUserAborted) {
		return -1, nil
	}
	return choice, err
}
