package model

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/jorenretel/selene/sequence"
)

func TestNewLinearValidation(t *testing.T) {
	if _, err := NewLinear(0, 2); err == nil {
		t.Error("expected error for zero sequence length")
	}
	if _, err := NewLinear(4, 0); err == nil {
		t.Error("expected error for zero feature count")
	}
}

func TestLinearForwardShapeAndRange(t *testing.T) {
	m, err := NewLinear(4, 3)
	if err != nil {
		t.Fatal(err)
	}

	batch := []*mat.Dense{sequence.Encode("ACGT"), sequence.Encode("TTTT")}
	out, err := m.Forward(batch)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	rows, cols := out.Dims()
	if rows != 2 || cols != 3 {
		t.Fatalf("expected 2x3 output, got %dx%d", rows, cols)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			p := out.At(i, j)
			if p <= 0 || p >= 1 {
				t.Errorf("output[%d][%d] = %f outside (0, 1)", i, j, p)
			}
		}
	}
}

func TestLinearForwardRejectsWrongShape(t *testing.T) {
	m, err := NewLinear(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Forward(nil); err == nil {
		t.Error("expected error for empty batch")
	}
	if _, err := m.Forward([]*mat.Dense{sequence.Encode("ACGTACGT")}); err == nil {
		t.Error("expected error for encoding longer than the model window")
	}
}

func TestLinearBackwardBeforeForward(t *testing.T) {
	m, err := NewLinear(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Backward(mat.NewDense(1, 2, nil)); err == nil {
		t.Error("expected error calling Backward before Forward")
	}
}

// TestLinearGradientNumerically checks the analytic weight gradient against
// a central finite difference of the loss.
func TestLinearGradientNumerically(t *testing.T) {
	m, err := NewLinear(3, 2)
	if err != nil {
		t.Fatal(err)
	}
	criterion := NewBCELoss()
	batch := []*mat.Dense{sequence.Encode("ACG"), sequence.Encode("TGA")}
	targets := mat.NewDense(2, 2, []float64{1, 0, 0, 1})

	lossAt := func() float64 {
		out, err := m.Forward(batch)
		if err != nil {
			t.Fatal(err)
		}
		loss, err := criterion.Forward(out, targets)
		if err != nil {
			t.Fatal(err)
		}
		return loss
	}

	m.ZeroGrad()
	out, err := m.Forward(batch)
	if err != nil {
		t.Fatal(err)
	}
	grad, err := criterion.Backward(out, targets)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Backward(grad); err != nil {
		t.Fatal(err)
	}

	const eps = 1e-6
	for _, p := range m.Parameters() {
		for _, idx := range []int{0, len(p.Value) / 2, len(p.Value) - 1} {
			orig := p.Value[idx]
			p.Value[idx] = orig + eps
			plus := lossAt()
			p.Value[idx] = orig - eps
			minus := lossAt()
			p.Value[idx] = orig

			numeric := (plus - minus) / (2 * eps)
			if math.Abs(numeric-p.Grad[idx]) > 1e-5 {
				t.Errorf("%s[%d]: analytic gradient %g, numeric %g",
					p.Name, idx, p.Grad[idx], numeric)
			}
		}
	}
}

func TestZeroGrad(t *testing.T) {
	m, err := NewLinear(3, 2)
	if err != nil {
		t.Fatal(err)
	}
	batch := []*mat.Dense{sequence.Encode("ACG")}
	targets := mat.NewDense(1, 2, []float64{1, 0})

	out, err := m.Forward(batch)
	if err != nil {
		t.Fatal(err)
	}
	grad, err := NewBCELoss().Backward(out, targets)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Backward(grad); err != nil {
		t.Fatal(err)
	}

	m.ZeroGrad()
	for _, p := range m.Parameters() {
		for i, g := range p.Grad {
			if g != 0 {
				t.Fatalf("%s grad[%d] not cleared: %g", p.Name, i, g)
			}
		}
	}
}

func TestBCELoss(t *testing.T) {
	loss := NewBCELoss()
	predicted := mat.NewDense(1, 2, []float64{0.9, 0.1})
	targets := mat.NewDense(1, 2, []float64{1, 0})

	got, err := loss.Forward(predicted, targets)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	want := -math.Log(0.9) // identical contribution from both elements
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("expected loss %g, got %g", want, got)
	}

	// Confident wrong predictions must stay finite.
	predicted = mat.NewDense(1, 1, []float64{0.0})
	targets = mat.NewDense(1, 1, []float64{1.0})
	got, err = loss.Forward(predicted, targets)
	if err != nil {
		t.Fatal(err)
	}
	if math.IsInf(got, 0) || math.IsNaN(got) {
		t.Errorf("loss should be clamped finite, got %g", got)
	}
}

func TestMSELoss(t *testing.T) {
	loss := NewMSELoss()
	predicted := mat.NewDense(1, 2, []float64{1.0, 0.0})
	targets := mat.NewDense(1, 2, []float64{0.0, 0.0})

	got, err := loss.Forward(predicted, targets)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-0.5) > 1e-12 {
		t.Errorf("expected mean squared error 0.5, got %g", got)
	}

	grad, err := loss.Backward(predicted, targets)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(grad.At(0, 0)-1.0) > 1e-12 {
		t.Errorf("expected gradient 1.0, got %g", grad.At(0, 0))
	}
}

func TestLossShapeMismatch(t *testing.T) {
	for _, loss := range []Loss{NewBCELoss(), NewMSELoss()} {
		if _, err := loss.Forward(mat.NewDense(1, 2, nil), mat.NewDense(2, 2, nil)); err == nil {
			t.Errorf("%T: expected shape mismatch error from Forward", loss)
		}
		if _, err := loss.Backward(mat.NewDense(1, 2, nil), mat.NewDense(2, 2, nil)); err == nil {
			t.Errorf("%T: expected shape mismatch error from Backward", loss)
		}
	}
}

func TestNewLoss(t *testing.T) {
	if _, err := NewLoss("bce"); err != nil {
		t.Errorf("bce should construct: %v", err)
	}
	if _, err := NewLoss(""); err != nil {
		t.Errorf("empty name should default: %v", err)
	}
	if _, err := NewLoss("mse"); err != nil {
		t.Errorf("mse should construct: %v", err)
	}
	if _, err := NewLoss("hinge"); err == nil {
		t.Error("expected error for unknown loss")
	}
}
