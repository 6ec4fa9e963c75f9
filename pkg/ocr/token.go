package ocr

// Token is one word-level unit recognized by the OCR engine.
// Confidence is 0-100, or -1 when the engine does not report one.
type Token struct {
	Text       string `json:"text"`
	Confidence int    `json:"confidence"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// Row is a band of tokens sharing roughly the same vertical position, ordered left to right.
type Row struct {
	Index  int     `json:"index"`
	Tokens []Token `json:"tokens"`
	Text   string  `json:"text"`
}
