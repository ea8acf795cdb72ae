// Package policy provides policies that need no training.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/boristopalov/rlcore/pkg/agent"
	"github.com/boristopalov/rlcore/pkg/core"
	"github.com/boristopalov/rlcore/pkg/distribution"
	"github.com/boristopalov/rlcore/pkg/providers"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gonum.org/v1/gonum/floats"
)

var errNoProbabilities = errors.New("reply holds no action probabilities")

// LLMPrior asks a language model for action probabilities. It is an
// inference-only actor network: Update never changes it. Replies that cannot
// be parsed yield a uniform distribution.
type LLMPrior[O, S any, A ~int] struct {
	completer providers.Completer
	model     string
	actions   []string
	describe  func(O) string
}

// NewLLMPrior returns a prior over len(actions) actions; actions[i] names
// action A(i). describe renders an observation for the prompt.
func NewLLMPrior[O, S any, A ~int](completer providers.Completer, model string, actions []string, describe func(O) string) *LLMPrior[O, S, A] {
	return &LLMPrior[O, S, A]{
		completer: completer,
		model:     model,
		actions:   actions,
		describe:  describe,
	}
}

// Prompt renders the request sent for an observation.
func (p *LLMPrior[O, S, A]) Prompt(obs O) (string, error) {
	example := "{}"
	for _, name := range p.actions {
		var err error
		example, err = sjson.Set(example, name, math.Round(100/float64(len(p.actions)))/100)
		if err != nil {
			return "", err
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are choosing the next action of an agent.\n")
	fmt.Fprintf(&b, "Current situation: %s\n", p.describe(obs))
	fmt.Fprintf(&b, "Available actions: %s\n", strings.Join(p.actions, ", "))
	fmt.Fprintf(&b, "Reply with only a JSON object mapping every action to the probability of choosing it, for example %s", example)
	return b.String(), nil
}

func (p *LLMPrior[O, S, A]) Prediction(ctx context.Context, input core.AgentInput[O, S]) (agent.ActorOutput[A, S], error) {
	prompt, err := p.Prompt(input.Observation)
	if err != nil {
		return agent.ActorOutput[A, S]{}, err
	}
	reply, err := p.completer.Complete(ctx, p.model, prompt)
	if err != nil {
		return agent.ActorOutput[A, S]{}, err
	}
	probs, err := parseProbabilities(reply, p.actions)
	if err != nil {
		log.Printf("llm prior: %v, falling back to a uniform prior", err)
		probs = make([]float64, len(p.actions))
		for i := range probs {
			probs[i] = 1 / float64(len(probs))
		}
	}
	return agent.ActorOutput[A, S]{
		ActionDistribution: distribution.NewEnum[A](probs),
		State:              input.State,
	}, nil
}

// Update reports zero loss and leaves the prior untouched.
func (p *LLMPrior[O, S, A]) Update(ctx context.Context, input core.AgentInput[O, S], lossFunc core.LossFunc[agent.ActorOutput[A, S]]) (float64, error) {
	return 0, nil
}

// parseProbabilities extracts the first JSON object of reply and returns the
// normalized probability of each named action. Missing actions get zero.
func parseProbabilities(reply string, actions []string) ([]float64, error) {
	start, end := strings.Index(reply, "{"), strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, errNoProbabilities
	}
	doc := reply[start : end+1]
	if !gjson.Valid(doc) {
		return nil, fmt.Errorf("invalid JSON in reply: %q", doc)
	}

	index := make(map[string]int, len(actions))
	for i, name := range actions {
		index[strings.ToLower(name)] = i
	}
	probs := make([]float64, len(actions))
	var parseErr error
	gjson.Parse(doc).ForEach(func(key, value gjson.Result) bool {
		i, ok := index[strings.ToLower(key.String())]
		if !ok {
			return true
		}
		if value.Type != gjson.Number || value.Float() < 0 {
			parseErr = fmt.Errorf("bad probability %s for %q", value.Raw, key.String())
			return false
		}
		probs[i] = value.Float()
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	sum := floats.Sum(probs)
	if sum <= 0 || math.IsInf(sum, 0) {
		return nil, errNoProbabilities
	}
	floats.Scale(1/sum, probs)
	return probs, nil
}
