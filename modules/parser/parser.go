// Package parser turns incron table lines into hooks on a models.Registry.
//
// A table line has the form
//
//	<path> <modifier>[,<modifier>...] <command> [<arg>...]
//
// where fields follow the quoting rules of the tokenizer package.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Leantar/incrond/models"
	"github.com/Leantar/incrond/modules/tokenizer"
	"github.com/rs/zerolog/log"
	"mvdan.cc/sh/v3/syntax"
)

var ErrMissingField = errors.New("line needs a path and an event list")

type Parser struct {
	Registry *models.Registry
	Owner    models.Owner
	Source   string
}

func New(reg *models.Registry, owner models.Owner, source string) *Parser {
	return &Parser{
		Registry: reg,
		Owner:    owner,
		Source:   source,
	}
}

// ParseLine parses one table line. Comment and blank lines yield a nil hook
// and no error. Only a '#' in the first column starts a comment. num is the
// 1-based line number used in log messages.
func (p *Parser) ParseLine(num int, line string) (*models.Hook, error) {
	if strings.HasPrefix(line, "#") || strings.TrimLeft(line, " \t") == "" {
		return nil, nil
	}

	tokens, err := tokenizer.Split(line)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize line %d: %w", num, err)
	}

	if len(tokens) < 2 {
		return nil, fmt.Errorf("failed to parse line %d: %w", num, ErrMissingField)
	}

	mask, flags := p.parseModifiers(num, tokens[1])

	command := tokens[2:]
	h := &models.Hook{
		Mask:         mask | models.MetaMask,
		Flags:        flags,
		Command:      command,
		Placeholders: models.ScanPlaceholders(command),
		Owner:        p.Owner,
		Source:       p.Source,
		Line:         num,
	}

	path := p.Registry.FindOrCreate(tokens[0])
	path.AddHook(h)

	p.checkSyntax(h)

	return h, nil
}

func (p *Parser) parseModifiers(num int, field string) (mask uint32, flags uint32) {
	for _, name := range strings.Split(field, ",") {
		if name == "" {
			continue
		}

		value, isFlag, ok := models.LookupModifier(name)
		if !ok {
			log.Warn().Str("file", p.Source).Int("line", num).Msgf("no known event %s", name)
			continue
		}

		if isFlag {
			flags |= value
		} else {
			mask |= value
		}
	}

	return mask, flags
}

// checkSyntax warns when the command would not parse as a shell line. The
// hook is kept either way, the shell has the final word at run time.
func (p *Parser) checkSyntax(h *models.Hook) {
	if len(h.Command) == 0 {
		return
	}

	sample := h.Expand(h.Path.Path, "file", models.InAllEvents)

	_, err := syntax.NewParser().Parse(strings.NewReader(sample), p.Source)
	if err != nil {
		log.Warn().Err(err).Str("file", p.Source).Int("line", h.Line).Msg("command does not look like valid shell syntax")
	}
}
