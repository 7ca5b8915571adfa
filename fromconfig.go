package convoflow

import (
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	chromem "github.com/philippgille/chromem-go"

	"github.com/convoflow/convoflow/config"
	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/knowledge"
	"github.com/convoflow/convoflow/logging"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/model/anthropic"
	"github.com/convoflow/convoflow/model/openai"
	"github.com/convoflow/convoflow/store"
)

// NewFromConfig builds a fully wired instance from loaded configuration: the
// model client, store backend, knowledge store, chat limits and logger all
// come from cfg. Option functions run afterwards and may override any of
// them, e.g. to supply a workflow runner or a custom embedder.
func NewFromConfig(cfg *config.Config, optFns ...func(o *Options)) (*ConvoFlow, error) {
	client, err := clientFromConfig(cfg.Model)
	if err != nil {
		return nil, err
	}
	st, err := storeFromConfig(cfg.Store)
	if err != nil {
		return nil, err
	}

	var ks *knowledge.ChromemStore
	if cfg.Knowledge.Dir != "" {
		ks, err = knowledge.NewPersistentChromemStore(cfg.Knowledge.Dir, chromem.NewEmbeddingFuncDefault())
		if err != nil {
			return nil, err
		}
	}

	base := func(o *Options) {
		o.Store = st
		o.MaxToolIterations = cfg.Chat.MaxToolIterations
		o.DefaultSystemPrompt = cfg.Chat.DefaultSystemPrompt
		o.Logger = logging.NewSlogLogger(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, false).
			WithContext("service", "convoflow")
		if ks != nil {
			o.Embedder = ks
			o.Searcher = ks
		}
	}
	return New(client, append([]func(o *Options){base}, optFns...)...), nil
}

func clientFromConfig(cfg config.ModelConfig) (model.Client, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxOutputTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxOutputTokens)
			}
			o.APIKey = cfg.APIKey
		}), nil
	case "anthropic":
		return anthropic.NewClient(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxOutputTokens > 0 {
				o.MaxTokens = int64(cfg.MaxOutputTokens)
			}
			o.APIKey = cfg.APIKey
		}), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}

func storeFromConfig(cfg config.StoreConfig) (core.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Path)
	case "memory", "":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
