package syncing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/Facturacion-sync/internal/domain"
	"github.com/jhoicas/Facturacion-sync/internal/domain/entity"
	"github.com/jhoicas/Facturacion-sync/pkg/logger"
)

// SubmissionClient es el puerto hacia el endpoint de estado de lotes del
// registro. registry.Client lo implementa; los tests inyectan un fake.
type SubmissionClient interface {
	GetSubmission(ctx context.Context, submissionUID string) (*entity.SubmissionPollState, error)
}

// PollerConfig parámetros del seguimiento de lotes.
type PollerConfig struct {
	PollInterval       time.Duration // 5s, intervalo que recomienda el propio registro
	BetweenSubmissions time.Duration // pausa entre lotes consecutivos
	InteractiveBound   int           // maxAttempts para llamadas interactivas
	BackgroundBound    int           // maxAttempts para corridas de fondo
}

// DefaultPollerConfig valores recomendados por la guía del registro.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		PollInterval:       5 * time.Second,
		BetweenSubmissions: time.Second,
		InteractiveBound:   5,
		BackgroundBound:    10,
	}
}

// Poller es la máquina de estados que sigue un lote enviado hasta estado
// terminal o timeout: in-progress → terminal | timeout. El timeout es un
// resultado reportado, no un error; el llamador puede re-consultar después.
type Poller struct {
	client  SubmissionClient
	writer  *BatchWriter
	backoff *BackoffPolicy
	cfg     PollerConfig
	log     *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller construye el poller. writer persiste los resultados por documento
// cuando el lote alcanza estado terminal.
func NewPoller(client SubmissionClient, writer *BatchWriter, cfg PollerConfig, log *logger.Logger) *Poller {
	return &Poller{
		client:  client,
		writer:  writer,
		backoff: NewBackoffPolicy(),
		cfg:     cfg,
		log:     log,
		sleep:   sleepCtx,
	}
}

// Poll consulta el estado del lote hasta terminal o hasta agotar maxAttempts.
// Errores transitorios durante el polling extienden la espera sin consumir
// presupuesto de intentos (el rate-limit respeta el hint del registro), pero
// también están acotados: una racha de maxAttempts errores seguidos propaga
// el último.
func (p *Poller) Poll(ctx context.Context, submissionUID string, maxAttempts int) (*entity.SubmissionPollResult, error) {
	if submissionUID == "" {
		return nil, fmt.Errorf("%w: submissionUid vacío", domain.ErrInvalidInput)
	}
	if maxAttempts <= 0 {
		maxAttempts = p.cfg.InteractiveBound
	}

	state := &entity.SubmissionPollState{
		SubmissionUID: submissionUID,
		MaxAttempts:   maxAttempts,
		OverallStatus: entity.SubmissionInProgress,
	}
	errStreak := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, err := p.client.GetSubmission(ctx, submissionUID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errStreak++
			if errStreak >= maxAttempts || errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("poll submission %s: %w", submissionUID, err)
			}
			wait := p.cfg.PollInterval
			if errors.Is(err, domain.ErrRateLimited) {
				wait = p.backoff.ComputeDelay(0, hintFromError(err))
			}
			p.log.Warn().Err(err).Str("submission", submissionUID).Dur("wait", wait).
				Msg("poller: error transitorio consultando lote")
			if serr := p.sleep(ctx, wait); serr != nil {
				return nil, serr
			}
			continue
		}
		errStreak = 0

		if !entity.EqualsInProgress(current.OverallStatus) {
			return p.finish(ctx, state, current)
		}

		state.AttemptsUsed++
		if state.AttemptsUsed >= state.MaxAttempts {
			p.log.Info().Str("submission", submissionUID).Int("attempts", state.AttemptsUsed).
				Msg("poller: lote sigue en proceso tras agotar intentos")
			return &entity.SubmissionPollResult{
				SubmissionUID: submissionUID,
				Status:        entity.SubmissionTimeout,
			}, nil
		}
		if err := p.sleep(ctx, p.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

// PollAll sigue varios lotes en secuencia (nunca en paralelo, para no
// amplificar el rate-limit del registro) con una pausa corta entre ellos.
// Los errores por lote se registran y no detienen a los demás.
func (p *Poller) PollAll(ctx context.Context, submissionUIDs []string, maxAttempts int) []entity.SubmissionPollResult {
	results := make([]entity.SubmissionPollResult, 0, len(submissionUIDs))
	for i, uid := range submissionUIDs {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			if err := p.sleep(ctx, p.cfg.BetweenSubmissions); err != nil {
				break
			}
		}
		res, err := p.Poll(ctx, uid, maxAttempts)
		if err != nil {
			p.log.Error().Err(err).Str("submission", uid).Msg("poller: seguimiento de lote fallido")
			continue
		}
		results = append(results, *res)
	}
	return results
}

// finish persiste los resultados por documento del estado terminal y arma el
// resultado para el llamador. Un fallo parcial del writer no anula el estado
// terminal ya conocido.
func (p *Poller) finish(ctx context.Context, state, current *entity.SubmissionPollState) (*entity.SubmissionPollResult, error) {
	state.OverallStatus = current.OverallStatus
	state.Documents = current.Documents

	if len(current.Documents) > 0 && p.writer != nil {
		if report, err := p.writer.Save(ctx, current.Documents); err != nil {
			p.log.Error().Err(err).Str("submission", state.SubmissionUID).
				Msg("poller: no se pudieron persistir resultados del lote")
		} else if report.ErrorCount > 0 {
			p.log.Warn().Int("errors", report.ErrorCount).Str("submission", state.SubmissionUID).
				Msg("poller: resultados del lote persistidos con errores parciales")
		}
	}

	p.log.Info().Str("submission", state.SubmissionUID).Str("status", state.OverallStatus).
		Int("documents", len(state.Documents)).Msg("poller: lote alcanzó estado terminal")
	return &entity.SubmissionPollResult{
		SubmissionUID: state.SubmissionUID,
		Status:        state.OverallStatus,
		DocumentCount: len(state.Documents),
		Documents:     state.Documents,
	}, nil
}
