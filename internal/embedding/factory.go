package embedding

import "fmt"

// Provider names accepted by New.
const (
	ProviderLLM  = "llm"
	ProviderONNX = "onnx"
	ProviderMock = "mock"
)

// Options select and configure an embedder.
type Options struct {
	Provider   string
	Dimensions int
	ONNX       ONNXConfig
	// Source serves the "llm" provider.
	Source Source
}

// New builds the embedder named by opts.Provider. The default is "llm".
func New(opts Options) (Embedder, error) {
	switch opts.Provider {
	case ProviderLLM, "":
		return NewSourceEmbedder(opts.Source, opts.Dimensions)
	case ProviderONNX:
		cfg := opts.ONNX
		if cfg.Dimensions == 0 {
			cfg.Dimensions = opts.Dimensions
		}
		return NewONNXEmbedder(cfg)
	case ProviderMock:
		return NewMockEmbedder(opts.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: llm, onnx, mock)", opts.Provider)
	}
}
