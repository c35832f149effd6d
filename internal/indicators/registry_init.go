package indicators

// init populates the process-wide kernel registry once, at package load.
// No dynamic registration happens after this.
func init() {
	Register("SMA", NewSMA)
	Register("EMA", NewEMA)
	Register("WMA", NewWMA)
	Register("AMA", NewAMA)
	Register("SINEWMA", NewSINEWMA)
	Register("SQWMA", NewSQWMA)
	Register("ZLEMA", NewZLEMA)
	Register("AMMA", NewAMMA)
	Register("GEOMEAN", NewGEOMEAN)
	Register("TPBF", NewTPBF)
	Register("RSI", NewRSI)
	Register("Stochastic", NewStochastic)
	Register("ATR", NewATR)
	Register("TrueRange", NewTrueRange)
	Register("WATR", NewWATR)
	Register("MAXFOR", NewMAXFOR)
	Register("MINFOR", NewMINFOR)
	Register("VTRAND", NewVTRAND)
	Register("BBMiddle", NewBBMiddle)
	Register("BBUpper", NewBBUpper)
	Register("BBLower", NewBBLower)
	Register("KCMiddle", NewKCMiddle)
	Register("KCUpper", NewKCUpper)
	Register("KCLower", NewKCLower)
	Register("SuperTrend", func() Kernel { return &SuperTrendKernel{} })

	auxiliaryOnly["MAXFOR"] = true
	auxiliaryOnly["MINFOR"] = true
}

var auxiliaryOnly = make(map[string]bool)

// IsAuxiliaryOnly reports whether name is excluded from direct candidate
// construction and usable only as a stop/take handler's auxiliary series.
func IsAuxiliaryOnly(name string) bool {
	return auxiliaryOnly[name]
}
