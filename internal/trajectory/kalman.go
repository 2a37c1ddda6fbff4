package trajectory

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// scalarKalman is a 1-state Kalman filter used to denoise a single sensor
// channel (camera heading or gyro rate) before fusion.
type scalarKalman struct {
	q, r        float64 // process and measurement noise
	x           float64 // estimate
	p           float64 // error covariance
	initialized bool
}

func newScalarKalman(processNoise, measurementNoise float64) *scalarKalman {
	return &scalarKalman{q: processNoise, r: measurementNoise, p: 1.0}
}

// Update feeds one measurement and returns the filtered estimate.
func (kf *scalarKalman) Update(measurement float64) float64 {
	if !kf.initialized {
		kf.x = measurement
		kf.initialized = true
		return kf.x
	}

	// Predict
	kf.p += kf.q

	// Update
	k := kf.p / (kf.p + kf.r)
	kf.x += k * (measurement - kf.x)
	kf.p *= 1 - k

	return kf.x
}

// unscentedAlphaFloor keeps the sigma-point spread strictly positive; a
// zero alpha collapses the unscented transform.
const unscentedAlphaFloor = 1e-4

// unscentedFilter tracks a 2-state [heading, rate] model through the
// unscented transform. The sigma-point square root comes from a Cholesky
// factorisation of the covariance; if the covariance drifts off positive
// definite the filter resets it to the identity instead of emitting NaNs.
type unscentedFilter struct {
	x           *mat.VecDense // [heading, rate]
	p           *mat.SymDense
	q, r        float64 // process and measurement noise
	alpha       float64 // sigma-point spread
	kappa       float64 // secondary scaling
	initialized bool
}

func newUnscentedFilter(processNoise, measurementNoise, alpha, kappa float64) *unscentedFilter {
	if alpha < unscentedAlphaFloor {
		alpha = unscentedAlphaFloor
	}
	p := mat.NewSymDense(2, nil)
	p.SetSym(0, 0, 1)
	p.SetSym(1, 1, 1)
	return &unscentedFilter{
		x:     mat.NewVecDense(2, nil),
		p:     p,
		q:     processNoise,
		r:     measurementNoise,
		alpha: alpha,
		kappa: kappa,
	}
}

// sigmaPoints returns the 2n+1 sigma points for the current state along
// with the mean and covariance weights.
func (f *unscentedFilter) sigmaPoints() (points [][2]float64, wm, wc []float64) {
	const n = 2
	lambda := f.alpha*f.alpha*(n+f.kappa) - n
	scale := n + lambda

	var chol mat.Cholesky
	if ok := chol.Factorize(f.p); !ok {
		// Covariance lost positive definiteness; reset to identity.
		f.p = mat.NewSymDense(2, nil)
		f.p.SetSym(0, 0, 1)
		f.p.SetSym(1, 1, 1)
		chol.Factorize(f.p)
	}
	var l mat.TriDense
	chol.LTo(&l)

	points = make([][2]float64, 2*n+1)
	points[0] = [2]float64{f.x.AtVec(0), f.x.AtVec(1)}
	for i := 0; i < n; i++ {
		var col [2]float64
		for j := 0; j < n; j++ {
			col[j] = math.Sqrt(math.Abs(scale)) * l.At(j, i)
		}
		points[1+i] = [2]float64{points[0][0] + col[0], points[0][1] + col[1]}
		points[1+n+i] = [2]float64{points[0][0] - col[0], points[0][1] - col[1]}
	}

	wm = make([]float64, 2*n+1)
	wc = make([]float64, 2*n+1)
	wm[0] = lambda / scale
	wc[0] = lambda/scale + (1 - f.alpha*f.alpha + 2) // beta = 2 for Gaussian priors
	for i := 1; i < 2*n+1; i++ {
		wm[i] = 1 / (2 * scale)
		wc[i] = wm[i]
	}
	return points, wm, wc
}

// Step advances the filter by dt using the commanded heading rate, folds in
// an absolute heading observation, and returns the filtered heading.
func (f *unscentedFilter) Step(rate, observedHeading, dt float64) float64 {
	if !f.initialized {
		f.x.SetVec(0, observedHeading)
		f.x.SetVec(1, rate)
		f.initialized = true
		return observedHeading
	}

	points, wm, wc := f.sigmaPoints()

	// Propagate sigma points through the constant-rate motion model.
	for i := range points {
		points[i][0] += points[i][1] * dt
		points[i][1] = rate
	}

	// Predicted mean and covariance.
	var mx [2]float64
	for i, pt := range points {
		mx[0] += wm[i] * pt[0]
		mx[1] += wm[i] * pt[1]
	}
	pPred := mat.NewSymDense(2, nil)
	for i, pt := range points {
		d0, d1 := pt[0]-mx[0], pt[1]-mx[1]
		pPred.SetSym(0, 0, pPred.At(0, 0)+wc[i]*d0*d0)
		pPred.SetSym(0, 1, pPred.At(0, 1)+wc[i]*d0*d1)
		pPred.SetSym(1, 1, pPred.At(1, 1)+wc[i]*d1*d1)
	}
	pPred.SetSym(0, 0, pPred.At(0, 0)+f.q*dt)
	pPred.SetSym(1, 1, pPred.At(1, 1)+f.q*dt)

	// Measurement is the heading component; innovation statistics are
	// scalar so the update needs no matrix inverse.
	zPred := mx[0]
	s := pPred.At(0, 0) + f.r
	if s <= 0 {
		s = f.r + 1e-9
	}
	crossH := pPred.At(0, 0)
	crossR := pPred.At(0, 1)

	k0 := crossH / s
	k1 := crossR / s
	innov := WrapAngle(observedHeading - zPred)

	f.x.SetVec(0, mx[0]+k0*innov)
	f.x.SetVec(1, mx[1]+k1*innov)

	p := mat.NewSymDense(2, nil)
	p.SetSym(0, 0, pPred.At(0, 0)-k0*s*k0)
	p.SetSym(0, 1, pPred.At(0, 1)-k0*s*k1)
	p.SetSym(1, 1, pPred.At(1, 1)-k1*s*k1)
	f.p = p

	return f.x.AtVec(0)
}
