package classifier

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Supported kernels.
const (
	KernelLinear  = "linear"
	KernelRBF     = "rbf"
	KernelPoly    = "poly"
	KernelSigmoid = "sigmoid"
)

// minProb bounds calibrated probabilities away from 0 and 1.
const minProb = 1e-7

// SVM evaluates a binary kernel support-vector classifier.
type SVM struct {
	kernel    string
	classes   [2]int
	vectors   [][]float64
	dualCoef  []float64
	intercept float64
	gamma     float64
	coef0     float64
	degree    float64
	coef      []float64
	probA     float64
	probB     float64
	platt     bool
	width     int
}

// NewSVM validates a classifier document.
func NewSVM(doc SVMDocument) (*SVM, error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: classifier: %s", ErrInvalidArtifact, fmt.Sprintf(format, args...))
	}

	switch doc.Kernel {
	case KernelLinear, KernelRBF, KernelPoly, KernelSigmoid:
	default:
		return nil, invalid("unsupported kernel %q", doc.Kernel)
	}
	if len(doc.Classes) != 2 {
		return nil, invalid("expected 2 classes, got %d", len(doc.Classes))
	}
	if len(doc.Intercept) != 1 {
		return nil, invalid("expected 1 intercept, got %d", len(doc.Intercept))
	}

	s := &SVM{
		kernel:    doc.Kernel,
		classes:   [2]int{doc.Classes[0], doc.Classes[1]},
		intercept: doc.Intercept[0],
		gamma:     doc.Gamma,
		coef0:     doc.Coef0,
		degree:    float64(doc.Degree),
	}

	if doc.Kernel == KernelLinear && len(doc.Coef) == 1 && len(doc.Coef[0]) > 0 {
		s.coef = doc.Coef[0]
		s.width = len(s.coef)
	} else {
		if len(doc.SupportVectors) == 0 {
			return nil, invalid("no support vectors")
		}
		if len(doc.DualCoef) != 1 || len(doc.DualCoef[0]) != len(doc.SupportVectors) {
			return nil, invalid("dual_coef must be 1 x %d", len(doc.SupportVectors))
		}
		s.width = len(doc.SupportVectors[0])
		for i, sv := range doc.SupportVectors {
			if len(sv) != s.width {
				return nil, invalid("support vector %d has %d features, want %d", i, len(sv), s.width)
			}
		}
		s.vectors = doc.SupportVectors
		s.dualCoef = doc.DualCoef[0]
	}

	if doc.Kernel != KernelLinear && s.gamma <= 0 {
		return nil, invalid("gamma must be positive for kernel %q", doc.Kernel)
	}
	if doc.Kernel == KernelPoly && doc.Degree < 1 {
		return nil, invalid("poly kernel needs degree >= 1")
	}

	if len(doc.ProbA) > 0 || len(doc.ProbB) > 0 {
		if len(doc.ProbA) != 1 || len(doc.ProbB) != 1 {
			return nil, invalid("prob_a and prob_b must hold one value each")
		}
		s.probA, s.probB, s.platt = doc.ProbA[0], doc.ProbB[0], true
	}

	return s, nil
}

// Width returns the number of features the classifier expects.
func (s *SVM) Width() int {
	return s.width
}

// Calibrated reports whether Platt probabilities are available.
func (s *SVM) Calibrated() bool {
	return s.platt
}

// Decision returns the signed distance of x; positive favors the second class.
func (s *SVM) Decision(x []float64) float64 {
	if s.coef != nil {
		return floats.Dot(s.coef, x) + s.intercept
	}

	var sum float64
	for i, sv := range s.vectors {
		sum += s.dualCoef[i] * s.kernelValue(sv, x)
	}

	return sum + s.intercept
}

// Class maps a decision value to a class.
func (s *SVM) Class(decision float64) int {
	if decision > 0 {
		return s.classes[1]
	}

	return s.classes[0]
}

// Predict returns the class for x.
func (s *SVM) Predict(x []float64) int {
	return s.Class(s.Decision(x))
}

// Probability returns the probability of the second class for a decision value.
func (s *SVM) Probability(decision float64) float64 {
	if !s.platt {
		return 1 / (1 + math.Exp(-decision))
	}

	p := 1 / (1 + math.Exp(s.probA*decision+s.probB))
	return math.Min(math.Max(p, minProb), 1-minProb)
}

func (s *SVM) kernelValue(a, b []float64) float64 {
	switch s.kernel {
	case KernelRBF:
		d := floats.Distance(a, b, 2)
		return math.Exp(-s.gamma * d * d)
	case KernelPoly:
		return math.Pow(s.gamma*floats.Dot(a, b)+s.coef0, s.degree)
	case KernelSigmoid:
		return math.Tanh(s.gamma*floats.Dot(a, b) + s.coef0)
	default:
		return floats.Dot(a, b)
	}
}
