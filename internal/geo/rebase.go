package geo

// Rebase expresses the target pose in the reference pose's coordinate frame.
//
//	t' = refRᵀ (tgtT - refT)
//	R' = refRᵀ tgtR
//
// refR must be a rotation; its transpose is used as the inverse.
func Rebase(refR Mat3, refT Vec3, tgtR Mat3, tgtT Vec3) (Mat3, Vec3) {
	inv := refR.Transpose()
	return inv.Mul(tgtR), inv.MulVec(tgtT.Sub(refT))
}

// Compose is the inverse of Rebase: it maps a pose expressed in the reference
// frame back into the frame the reference itself is expressed in.
func Compose(refR Mat3, refT Vec3, relR Mat3, relT Vec3) (Mat3, Vec3) {
	return refR.Mul(relR), refR.MulVec(relT).Add(refT)
}
