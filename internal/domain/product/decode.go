package product

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// DecodeJSON parses one catalog record as exported by the catalog service:
//
//	{"id":1,"name":"Tee","description":"...","category":3,"price":"25.00",
//	 "comparePrice":"30.00","image":{"thumbnail":"/t.jpg",...}}
//
// Prices may be JSON strings or numbers.
func DecodeJSON(data []byte) (Product, error) {
	var (
		p     Product
		hasID bool
		price bool
	)
	d := jx.DecodeBytes(data)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = d.Int64()
			hasID = err == nil
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "category":
			p.Category, err = d.Int64()
		case "price":
			p.Price, price, err = decodeAmount(d)
		case "comparePrice":
			p.ComparePrice, _, err = decodeAmount(d)
		case "image":
			err = decodeImage(d, &p.Image)
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	})
	if err != nil {
		return Product{}, err
	}

	switch {
	case !hasID || p.ID <= 0:
		return Product{}, errors.New("missing or non-positive id")
	case p.Name == "":
		return Product{}, errors.Errorf("product %d: missing name", p.ID)
	case !price || p.Price.IsNegative():
		return Product{}, errors.Errorf("product %d: missing or negative price", p.ID)
	}
	return p, nil
}

// decodeAmount reads a string or number amount. ok is false for null.
func decodeAmount(d *jx.Decoder) (v decimal.Decimal, ok bool, err error) {
	var raw string
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, false, d.Null()
	case jx.String:
		raw, err = d.Str()
	default:
		var n jx.Num
		n, err = d.Num()
		raw = n.String()
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	v, err = decimal.NewFromString(raw)
	return v, err == nil, err
}

func decodeImage(d *jx.Decoder, img *Image) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "thumbnail":
			img.Thumbnail, err = d.Str()
		case "mobile":
			img.Mobile, err = d.Str()
		case "tablet":
			img.Tablet, err = d.Str()
		case "desktop":
			img.Desktop, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}
