package agent

import (
	"github.com/boristopalov/rlcore/pkg/core"
	"github.com/boristopalov/rlcore/pkg/distribution"
	"github.com/boristopalov/rlcore/pkg/values"
)

// Objective is what a loss function attaches to a network output: the taken
// action, the weights of each loss term and the resulting loss values. A
// network minimizes Loss.Total().
type Objective[A any] struct {
	Action A
	// Weight multiplies -log π(Action). It is the return for REINFORCE and the
	// advantage for A2C.
	Weight        float64
	EntropyWeight float64
	ValueTarget   float64
	ValueWeight   float64
	Loss          values.Loss
}

// ActorOutput is the output of a policy network.
type ActorOutput[A, S any] struct {
	ActionDistribution distribution.Distribution[A]
	State              S
	// Objective is set only on outputs returned by a loss function.
	Objective *Objective[A]
}

// ActorCriticOutput is the output of a policy network with a value head.
type ActorCriticOutput[A, S any] struct {
	ActionDistribution distribution.Distribution[A]
	Value              float64
	State              S
	Objective          *Objective[A]
}

// QOutput holds one Q value per action. Loss functions return it with the
// Q values replaced by their regression targets.
type QOutput[S any] struct {
	QValues []float64
	State   S
}

type ActorNetwork[O, S, A any] interface {
	core.Network[core.AgentInput[O, S], ActorOutput[A, S]]
}

type ActorCriticNetwork[O, S, A any] interface {
	core.Network[core.AgentInput[O, S], ActorCriticOutput[A, S]]
}

type QNetwork[O, S any] interface {
	core.Network[core.AgentInput[O, S], QOutput[S]]
}

// TargetSyncer is implemented by networks that can keep a target copy of
// themselves for bootstrapping.
type TargetSyncer[N any] interface {
	// Clone returns an independent copy of the network.
	Clone() N
	// SoftUpdate moves the receiver's parameters toward source:
	// p = forgetFactor*source + (1-forgetFactor)*p.
	SoftUpdate(source N, forgetFactor float64) error
}
