package fpmath

// FundingRate computes the signed funding rate from aggregate open
// interest, scaled to FundingPrecision:
//
//	rate = (totalLong - totalShort) / (totalLong + totalShort) * baseRateBps/10000
//
// Positive rate means longs pay shorts. Returns zero when both sides are
// empty to avoid division by zero.
func FundingRate(totalLong, totalShort, baseRateBps int64) (int64, error) {
	total := totalLong + totalShort
	if total == 0 {
		return 0, nil
	}

	imbalance, err := MulDiv(totalLong-totalShort, FundingPrecision, total)
	if err != nil {
		return 0, err
	}
	return MulDiv(imbalance, baseRateBps, BpsDenominator)
}

// FundingPayment computes the funding owed by (positive) or to (negative) a
// position of the given size over whole elapsed hours.
//
// Longs owe when the rate is positive, shorts receive, and vice versa;
// magnitude scales linearly with hoursElapsed.
func FundingPayment(size, rate, sideSign, hoursElapsed int64) (int64, error) {
	if hoursElapsed <= 0 || rate == 0 {
		return 0, nil
	}

	perHour, err := MulDiv(size, rate, FundingPrecision)
	if err != nil {
		return 0, err
	}
	return MulDiv(perHour, sideSign*hoursElapsed, 1)
}
