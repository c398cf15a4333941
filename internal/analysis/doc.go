// Package analysis inspects recorded metric series.
//
//   - [PowerSpectrum]: one-sided spectrum of a series sampled at a fixed tick
//   - [DominantFrequency]: strongest oscillation, e.g. sloshing in a filled box
//   - [SettleIndex]: first tick after which a series stays near its final value
//
// A pile coming to rest shows up as kinetic energy settling:
//
//	series, _ := st.LoadSeries(id)
//	tick := analysis.SettleIndex(series.Columns["kinetic_energy"], 0.05)
package analysis
