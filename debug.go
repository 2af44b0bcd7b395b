// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"os"

	"github.com/524D/asapquant/internal/label"
	"github.com/524D/asapquant/internal/quant"
	"github.com/524D/asapquant/internal/xic"
)

// debugRange returns the PSM range for debug output. ASAPQUANT_DEBUG=1
// selects all PSMs when no range is given.
func debugRange(debugPSMs string) string {
	if debugPSMs == `` && os.Getenv("ASAPQUANT_DEBUG") == "1" {
		return `:`
	}
	return debugPSMs
}

// debugTrace returns a function that prints the chromatograms of the
// PSMs in range debugPSMs. cur points at the index of the PSM that is
// being quantified.
func debugTrace(debugPSMs string, numPSMs int, cur *int) quant.TraceFunc {
	r := debugRange(debugPSMs)
	if r == `` {
		return nil
	}
	debugMin, debugMax, _ := parseIntRange(r, 0, numPSMs)
	return func(psm quant.PSM, charge int, iso label.Isotopolog, raw, fit *xic.Chromatogram) {
		if *cur < debugMin || *cur > debugMax {
			return
		}
		fmt.Printf("PSM:%d %s charge:%d %s samples:%d\n",
			*cur, psm.Peptide.Sequence, charge, iso, raw.Len())
		for j := range raw.Time {
			fmt.Printf("%d scan:%d rt:%f raw:%f fit:%f\n",
				j, raw.Scan[j], raw.Time[j], raw.Intensity[j], fit.Intensity[j])
		}
	}
}

func debugLogResult(debugPSMs string, numPSMs int, i int, res quant.Result) {
	r := debugRange(debugPSMs)
	if r == `` {
		return
	}
	debugMin, debugMax, _ := parseIntRange(r, 0, numPSMs)
	if i < debugMin || i > debugMax {
		return
	}
	fmt.Printf("PSM:%d status:%s ratio:%f+-%f area:%f\n",
		i, res.Status, res.MeanRatio, res.RatioError, res.Area)
	for _, o := range res.PerCharge {
		if o.Light.State == quant.Unavailable && o.Heavy.State == quant.Unavailable {
			continue
		}
		used := `-`
		if o.Included {
			used = `+`
		}
		fmt.Printf(" charge:%d ratio:%f+-%f used:%s\n", o.Charge, o.Ratio, o.RatioError, used)
		for _, iso := range []label.Isotopolog{label.Light, label.Heavy} {
			p := o.Isotopolog(iso)
			fmt.Printf("  %s %s scans:%d-%d-%d bg:%f area:%f+-%f rt:%f\n",
				iso, p.State, p.Left, p.Peak, p.Right, p.Background,
				p.Area, p.AreaError, p.Time)
		}
	}
	if res.Err != nil {
		fmt.Printf(" error: %v\n", res.Err)
	}
}
