package audit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"bioage/internal/domain"
)

// Stage marca la etapa del pipeline a la que pertenece una línea.
type Stage string

const (
	StageStartup   Stage = "STARTUP"
	StageIncoming  Stage = "INCOMING"
	StageReceived  Stage = "RECEIVED"
	StageRawBody   Stage = "RAW_BODY"
	StageFeatures  Stage = "FEATURES"
	StageScored    Stage = "SCORED"
	StageAgeResult Stage = "BIO_AGE"
	StageResponse  Stage = "RESPONSE"
	StageRejected  Stage = "REJECTED"
	StageFailed    Stage = "FAILED"
	StageEnd       Stage = "END"
)

// StartupMarker se escribe una vez por proceso al abrir el log.
const StartupMarker = "--- Server Started ---"

const noRequest = "-"

var ErrClosed = errors.New("audit logger closed")

// Entry es un evento del audit log.
type Entry struct {
	Time      time.Time
	RequestID string
	Stage     Stage
	Message   string
	Features  *domain.FeatureVector
}

// Store recibe una copia de cada entrada ya escrita en el archivo.
type Store interface {
	Save(ctx context.Context, e Entry) error
}

// Logger es el único dueño del destino del audit log. Un solo goroutine
// escribe, así que cada línea queda entera aunque haya requests concurrentes.
type Logger struct {
	w      io.Writer
	out    *bufio.Writer
	closer io.Closer
	store  Store
	logger *zap.Logger

	queue chan Entry
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Open abre path en modo append (nunca se trunca) y escribe el marcador de arranque.
func Open(path string, queueSize int, store Store, logger *zap.Logger) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	l := New(f, queueSize, store, logger)
	l.closer = f
	if err := l.Append(context.Background(), Entry{Stage: StageStartup, Message: StartupMarker}); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

// New crea un Logger sobre un writer arbitrario.
func New(w io.Writer, queueSize int, store Store, logger *zap.Logger) *Logger {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Logger{
		w:      w,
		out:    bufio.NewWriter(w),
		store:  store,
		logger: logger,
		queue:  make(chan Entry, queueSize),
		done:   make(chan struct{}),
	}
	go l.loop()
	return l
}

// Append encola una entrada. Si la cola está llena espera hasta que ctx
// termine; una entrada cancelada se descarta completa.
func (l *Logger) Append(ctx context.Context, e Entry) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	select {
	case l.queue <- e:
		return nil
	default:
	}

	select {
	case l.queue <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close vacía la cola, hace flush y cierra el destino.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *Logger) loop() {
	defer close(l.done)

	for e := range l.queue {
		if _, err := l.out.WriteString(FormatLine(e)); err != nil {
			l.logger.Warn("audit log write failed", zap.Error(err), zap.String("stage", string(e.Stage)))
			l.out.Reset(l.w)
		}
		if len(l.queue) == 0 {
			l.flush()
		}
		l.mirror(e)
	}
	l.flush()
}

func (l *Logger) flush() {
	if err := l.out.Flush(); err != nil {
		l.logger.Warn("audit log flush failed", zap.Error(err))
		// bufio conserva el error; se descarta el buffer para que las líneas siguientes puedan escribirse.
		l.out.Reset(l.w)
	}
}

func (l *Logger) mirror(e Entry) {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.store.Save(ctx, e); err != nil {
		l.logger.Warn("audit mirror save failed", zap.Error(err), zap.String("request_id", e.RequestID))
	}
}

// FormatLine serializa una entrada en una sola línea terminada en '\n'.
func FormatLine(e Entry) string {
	id := e.RequestID
	if id == "" {
		id = noRequest
	}
	msg := strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(e.Message)
	return fmt.Sprintf("%s [%s] %s %s\n", e.Time.UTC().Format(time.RFC3339Nano), id, e.Stage, msg)
}
