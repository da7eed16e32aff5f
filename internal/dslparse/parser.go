// Package dslparse turns the command language's surface syntax into the
// typed domain.Command AST and back again.
//
// The grammar is five imperative forms over ASCII/UTF-8 text:
//
//	command    := imperative
//	imperative := define_contract | define_idea | simulate | orchestrate | invoke
//	define_contract := "DEFINE" ws "CONTRACT" ws ident ws clauses
//	define_idea     := "DEFINE" ws "IDEA"     ws ident ws quoted
//	simulate        := "SIMULATE" ws "ENTITY" ws ident ws uint
//	orchestrate     := "ORCHESTRATE" ws ident
//	invoke          := "INVOKE" ws "RULESET" ws ident ws "ON" ws ident
//
// Parse must consume the whole trimmed input; trailing garbage is a
// SyntaxError.
package dslparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/logline-motor/motor/internal/domain"
)

// SyntaxError is returned for any malformed or incomplete command.
type SyntaxError struct {
	Message string
}

func (e *SyntaxError) Error() string { return e.Message }

func syntaxErrorf(format string, args ...any) error {
	return &SyntaxError{Message: fmt.Sprintf(format, args...)}
}

var (
	identRe  = regexp.MustCompile(`^[A-Za-z0-9_.@-]+`)
	uintRe   = regexp.MustCompile(`^[0-9]+`)
	wsRe     = regexp.MustCompile(`^[ \t\r\n]+`)
	clauseRe = regexp.MustCompile(`^[A-Za-z0-9 _.:@$%()\[\]-]*`)
)

type scanner struct {
	s string
}

// Parse converts a single DSL command string into its typed AST.
func Parse(input string) (*domain.Command, error) {
	s := &scanner{s: strings.TrimSpace(input)}
	if s.s == "" {
		return nil, syntaxErrorf("Comando vazio")
	}

	cmd, err := s.parseImperative()
	if err != nil {
		return nil, err
	}

	if s.s != "" {
		return nil, syntaxErrorf("Entrada não foi totalmente consumida. Restante: '%s'", s.s)
	}
	return cmd, nil
}

func (s *scanner) consumeKeyword(kw string) bool {
	if !strings.HasPrefix(s.s, kw) {
		return false
	}
	rest := s.s[len(kw):]
	if rest != "" {
		c := rest[0]
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			return false
		}
	}
	s.s = rest
	return true
}

func (s *scanner) requireWS() error {
	m := wsRe.FindString(s.s)
	if m == "" {
		return syntaxErrorf("esperado espaço em branco, encontrado: '%s'", s.s)
	}
	s.s = s.s[len(m):]
	return nil
}

func (s *scanner) scanIdent() (string, error) {
	m := identRe.FindString(s.s)
	if m == "" {
		return "", syntaxErrorf("identificador esperado, encontrado: '%s'", s.s)
	}
	s.s = s.s[len(m):]
	return m, nil
}

func (s *scanner) scanUint() (int, error) {
	m := uintRe.FindString(s.s)
	if m == "" {
		return 0, syntaxErrorf("número esperado, encontrado: '%s'", s.s)
	}
	s.s = s.s[len(m):]
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, syntaxErrorf("número inválido: '%s'", m)
	}
	return n, nil
}

// scanQuoted scans a double-quoted string literal: no escape sequences,
// the first closing quote ends the string.
func (s *scanner) scanQuoted() (string, error) {
	if !strings.HasPrefix(s.s, `"`) {
		return "", syntaxErrorf("string entre aspas esperada, encontrado: '%s'", s.s)
	}
	rest := s.s[1:]
	idx := strings.IndexByte(rest, '"')
	if idx < 0 {
		return "", syntaxErrorf("string não terminada: '%s'", s.s)
	}
	text := rest[:idx]
	s.s = rest[idx+1:]
	return text, nil
}

func (s *scanner) scanClauses() ([]string, error) {
	var clauses []string
	for {
		m := clauseRe.FindString(s.s)
		clause := strings.TrimSpace(m)
		s.s = s.s[len(m):]
		clauses = append(clauses, clause)

		save := s.s
		wsm := wsRe.FindString(s.s)
		tail := s.s[len(wsm):]
		if strings.HasPrefix(tail, ",") {
			tail = tail[1:]
			wsm2 := wsRe.FindString(tail)
			s.s = tail[len(wsm2):]
			continue
		}
		s.s = save
		break
	}
	return clauses, nil
}

func (s *scanner) parseImperative() (*domain.Command, error) {
	switch {
	case s.consumeKeyword("DEFINE"):
		if err := s.requireWS(); err != nil {
			return nil, err
		}
		switch {
		case s.consumeKeyword("CONTRACT"):
			return s.parseDefineContractRest()
		case s.consumeKeyword("IDEA"):
			return s.parseDefineIdeaRest()
		default:
			return nil, syntaxErrorf("palavra-chave desconhecida após DEFINE: '%s'", s.s)
		}
	case s.consumeKeyword("SIMULATE"):
		if err := s.requireWS(); err != nil {
			return nil, err
		}
		if !s.consumeKeyword("ENTITY") {
			return nil, syntaxErrorf("esperado ENTITY, encontrado: '%s'", s.s)
		}
		return s.parseSimulateRest()
	case s.consumeKeyword("ORCHESTRATE"):
		return s.parseOrchestrateRest()
	case s.consumeKeyword("INVOKE"):
		if err := s.requireWS(); err != nil {
			return nil, err
		}
		if !s.consumeKeyword("RULESET") {
			return nil, syntaxErrorf("esperado RULESET, encontrado: '%s'", s.s)
		}
		return s.parseInvokeRest()
	default:
		return nil, syntaxErrorf("palavra-chave desconhecida: '%s'", s.s)
	}
}

func (s *scanner) parseDefineContractRest() (*domain.Command, error) {
	if err := s.requireWS(); err != nil {
		return nil, err
	}
	id, err := s.scanIdent()
	if err != nil {
		return nil, err
	}
	if err := s.requireWS(); err != nil {
		return nil, err
	}
	clauses, err := s.scanClauses()
	if err != nil {
		return nil, err
	}
	return &domain.Command{
		Kind:           domain.KindDefineContract,
		DefineContract: &domain.DefineContract{ID: id, Clauses: clauses},
	}, nil
}

func (s *scanner) parseDefineIdeaRest() (*domain.Command, error) {
	if err := s.requireWS(); err != nil {
		return nil, err
	}
	id, err := s.scanIdent()
	if err != nil {
		return nil, err
	}
	if err := s.requireWS(); err != nil {
		return nil, err
	}
	text, err := s.scanQuoted()
	if err != nil {
		return nil, err
	}
	return &domain.Command{
		Kind:       domain.KindDefineIdea,
		DefineIdea: &domain.DefineIdea{ID: id, Text: text},
	}, nil
}

func (s *scanner) parseSimulateRest() (*domain.Command, error) {
	if err := s.requireWS(); err != nil {
		return nil, err
	}
	id, err := s.scanIdent()
	if err != nil {
		return nil, err
	}
	if err := s.requireWS(); err != nil {
		return nil, err
	}
	rounds, err := s.scanUint()
	if err != nil {
		return nil, err
	}
	return &domain.Command{
		Kind:           domain.KindSimulateEntity,
		SimulateEntity: &domain.SimulateEntity{ID: id, Rounds: rounds},
	}, nil
}

func (s *scanner) parseOrchestrateRest() (*domain.Command, error) {
	if err := s.requireWS(); err != nil {
		return nil, err
	}
	mode, err := s.scanIdent()
	if err != nil {
		return nil, err
	}
	return &domain.Command{
		Kind:        domain.KindOrchestrate,
		Orchestrate: &domain.Orchestrate{Mode: mode},
	}, nil
}

func (s *scanner) parseInvokeRest() (*domain.Command, error) {
	if err := s.requireWS(); err != nil {
		return nil, err
	}
	rulesetID, err := s.scanIdent()
	if err != nil {
		return nil, err
	}
	if err := s.requireWS(); err != nil {
		return nil, err
	}
	if !s.consumeKeyword("ON") {
		return nil, syntaxErrorf("esperado ON, encontrado: '%s'", s.s)
	}
	if err := s.requireWS(); err != nil {
		return nil, err
	}
	entityID, err := s.scanIdent()
	if err != nil {
		return nil, err
	}
	return &domain.Command{
		Kind: domain.KindInvokeRuleset,
		InvokeRuleset: &domain.InvokeRuleset{
			RulesetID: rulesetID,
			EntityID:  entityID,
		},
	}, nil
}

// Render renders a Command back to its canonical surface syntax. Used by
// the parse round-trip property: Parse(Render(cmd)) must equal cmd.
func Render(cmd *domain.Command) string {
	switch cmd.Kind {
	case domain.KindDefineContract:
		return fmt.Sprintf("DEFINE CONTRACT %s %s",
			cmd.DefineContract.ID, strings.Join(cmd.DefineContract.Clauses, ", "))
	case domain.KindDefineIdea:
		return fmt.Sprintf(`DEFINE IDEA %s "%s"`, cmd.DefineIdea.ID, cmd.DefineIdea.Text)
	case domain.KindSimulateEntity:
		return fmt.Sprintf("SIMULATE ENTITY %s %d", cmd.SimulateEntity.ID, cmd.SimulateEntity.Rounds)
	case domain.KindOrchestrate:
		return fmt.Sprintf("ORCHESTRATE %s", cmd.Orchestrate.Mode)
	case domain.KindInvokeRuleset:
		return fmt.Sprintf("INVOKE RULESET %s ON %s", cmd.InvokeRuleset.RulesetID, cmd.InvokeRuleset.EntityID)
	default:
		return ""
	}
}
