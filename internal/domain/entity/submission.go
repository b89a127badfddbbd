package entity

import "strings"

// Estados globales de un lote (submission) según el registro, más el estado
// sintético Timeout que produce el poller al agotar los intentos.
const (
	SubmissionInProgress = "in progress"
	SubmissionValid      = "Valid"
	SubmissionTimeout    = "Timeout"
)

// SubmissionPollState es el estado efímero de un seguimiento de lote:
// se crea cuando una sincronización descubre un submission sin estado
// terminal y se descarta al terminar (terminal o timeout).
type SubmissionPollState struct {
	SubmissionUID string
	AttemptsUsed  int
	MaxAttempts   int
	OverallStatus string // SubmissionInProgress hasta que el registro diga otra cosa
	Documents     []SyncedDocument
}

// Terminal indica si el poller puede detenerse: cualquier estado global
// distinto de "in progress" (sin importar mayúsculas) es terminal.
func (s *SubmissionPollState) Terminal() bool {
	return !EqualsInProgress(s.OverallStatus)
}

// EqualsInProgress compara un estado global contra "in progress" sin
// distinguir mayúsculas; el registro no es consistente en el casing.
func EqualsInProgress(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), SubmissionInProgress)
}

// SubmissionPollResult es el resultado que se devuelve al llamador.
type SubmissionPollResult struct {
	SubmissionUID string
	Status        string
	DocumentCount int
	Documents     []SyncedDocument
}
