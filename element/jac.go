package element

import "gonum.org/v1/gonum/mat"

// JacBlock returns the writable sub-matrix of j holding the derivative of
// row element i of rowDef with respect to column element k of colDef.
// Offsets and sizes come from the definitions; the returned view aliases j.
func JacBlock(j *mat.Dense, rowDef, colDef *Definition, i, k int) *mat.Dense {
	r0 := rowDef.Offset(i)
	c0 := colDef.Offset(k)
	rd := rowDef.TraitsAt(i).Dim()
	cd := colDef.TraitsAt(k).Dim()

	return j.Slice(r0, r0+rd, c0, c0+cd).(*mat.Dense)
}
