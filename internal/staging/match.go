package staging

import "github.com/1broseidon/resctl/internal/display"

// BestMatch refines a width and height into a full mode from the monitor's
// capability list, preferring the highest frequency and then the highest
// bit depth.
func BestMatch(m display.Monitor, width, height int) (display.Resolution, bool) {
	var best display.Resolution
	found := false
	for _, r := range m.Modes {
		if r.Width != width || r.Height != height {
			continue
		}
		if !found || r.Frequency > best.Frequency ||
			(r.Frequency == best.Frequency && r.BitsPerPixel > best.BitsPerPixel) {
			best = r
			found = true
		}
	}
	return best, found
}

// Sizes returns the distinct width/height pairs of the monitor's modes in
// capability order.
func Sizes(m display.Monitor) []display.Resolution {
	var out []display.Resolution
	seen := make(map[[2]int]bool)
	for _, r := range m.Modes {
		key := [2]int{r.Width, r.Height}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, display.Resolution{Width: r.Width, Height: r.Height})
	}
	return out
}
