package failure

import (
	"errors"
	"fmt"

	"github.com/radieske/virtual-matchday/internal/matchday/ledger"
	"github.com/radieske/virtual-matchday/internal/shared/config"
)

// Kind classifica falhas do ciclo de reconciliação
type Kind string

const (
	// banco ou ledger inacessível; nada mudou, tenta de novo no próximo tick
	TransientIO Kind = "transient_io"
	// partida concluída sem placar resolvível; fica fora do lote
	DataIntegrity Kind = "data_integrity"
	// ledger respondeu com falha estruturada; commit local não acontece
	LedgerRejection Kind = "ledger_rejection"
	// identificador externo obrigatório ausente; o processo não sobe
	Configuration Kind = "configuration"
)

// Error anexa um Kind a um erro sem perder a cadeia original
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Transient(op string, err error) error { return Wrap(TransientIO, op, err) }
func Integrity(op string, err error) error { return Wrap(DataIntegrity, op, err) }
func Rejected(op string, err error) error  { return Wrap(LedgerRejection, op, err) }
func Config(op string, err error) error    { return Wrap(Configuration, op, err) }

// Classify devolve o Kind de err. O *Error mais externo vence; rejeições do
// ledger e configuração ausente ou inválida são reconhecidas pela cadeia; o resto é TransientIO.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var rej *ledger.RejectionError
	if errors.As(err, &rej) {
		return LedgerRejection
	}
	if errors.Is(err, config.ErrMissing) || errors.Is(err, config.ErrInvalid) {
		return Configuration
	}
	return TransientIO
}

// Is facilita checagens como failure.Is(err, failure.LedgerRejection)
func Is(err error, kind Kind) bool {
	return err != nil && Classify(err) == kind
}
