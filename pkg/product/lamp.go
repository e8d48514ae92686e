package product

import _ "embed"

// TableLamp is the script of the bundled table lamp product. It pairs with
// the catalog in examples/table_lamp.
//
//go:embed table_lamp.lisp
var TableLamp string
