package engine

import "fmt"

// Outcome é um dos resultados mutuamente exclusivos de um pool.
// Home e Away competem entre si no balanceamento; Draw fica de fora.
type Outcome int

const (
	OutcomeDraw Outcome = iota
	OutcomeHome
	OutcomeAway
)

// outcomes na ordem usada para varreduras determinísticas
var allOutcomes = []Outcome{OutcomeDraw, OutcomeHome, OutcomeAway}

func (o Outcome) String() string {
	switch o {
	case OutcomeDraw:
		return "draw"
	case OutcomeHome:
		return "home"
	case OutcomeAway:
		return "away"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

func (o Outcome) valid() bool {
	return o == OutcomeDraw || o == OutcomeHome || o == OutcomeAway
}

// ParseOutcome converte a forma textual usada nos payloads e mensagens Kafka.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "draw":
		return OutcomeDraw, nil
	case "home":
		return OutcomeHome, nil
	case "away":
		return OutcomeAway, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOutcome, s)
}

// State é o estado do ciclo de vida de um pool. Nenhuma transição pode ser
// pulada; operações fora do estado válido falham com ErrInvalidState.
type State int

const (
	StateOpen State = iota
	StateBalancing
	StateLocked
	StateAwaitingOracle
	StateSettled   // terminal
	StateCancelled // terminal, via caminho administrativo
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateBalancing:
		return "BALANCING"
	case StateLocked:
		return "LOCKED"
	case StateAwaitingOracle:
		return "AWAITING_ORACLE"
	case StateSettled:
		return "SETTLED"
	case StateCancelled:
		return "CANCELLED"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) terminal() bool {
	return s == StateSettled || s == StateCancelled
}
