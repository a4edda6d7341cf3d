package gesture

// Overlay is the opacity of the YES, NO and PASS overlays on the top card.
type Overlay struct {
	Yes  float64 `json:"yes"`
	No   float64 `json:"no"`
	Pass float64 `json:"pass"`
}

// Overlay is a continuous function of the drag offset. x drives YES and NO,
// y drives PASS, each clamped to [0,1]. Thresholds do not gate it.
func (c Config) Overlay(offset Point, vp Viewport) Overlay {
	thrX, thrY := c.Thresholds(vp)
	return Overlay{
		Yes:  ratio(offset.X, thrX),
		No:   ratio(-offset.X, thrX),
		Pass: ratio(offset.Y, thrY),
	}
}

// Rotation is the top card tilt in degrees: MaxRotationDeg at half the
// viewport width, linear and unclamped beyond it.
func (c Config) Rotation(dx float64, vp Viewport) float64 {
	if vp.Width <= 0 {
		return 0
	}
	return dx / (vp.Width / 2) * c.MaxRotationDeg
}

func ratio(v, thr float64) float64 {
	if thr <= 0 {
		if v > 0 {
			return 1
		}
		return 0
	}
	return clamp01(v / thr)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// CardLayout positions one rendered card in the stack.
type CardLayout struct {
	Index       int     `json:"index"`
	Scale       float64 `json:"scale"`
	TranslateY  float64 `json:"translateY"`
	Opacity     float64 `json:"opacity"`
	Interactive bool    `json:"interactive"`
}

// StackLayout lays out the first min(n, depth) cards: each card below the
// top is smaller, lower and more transparent. Only index 0 is interactive.
func StackLayout(n, depth int) []CardLayout {
	if depth <= 0 {
		depth = 3
	}
	n = min(n, depth)
	out := make([]CardLayout, n)
	for i := range out {
		out[i] = CardLayout{
			Index:       i,
			Scale:       1 - float64(i)*0.035,
			TranslateY:  float64(i) * 10,
			Opacity:     1 - float64(i)*0.10,
			Interactive: i == 0,
		}
	}
	return out
}
