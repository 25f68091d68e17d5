package types

import "time"

// Gender values accepted for products.
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// Product represents a catalog item together with the images it owns.
type Product struct {
	// ID is the UUID of the product.
	ID string `json:"id" db:"id"`

	// Title is the unique display name of the product.
	Title string `json:"title" db:"title"`

	// Price is the non-negative unit price.
	Price float64 `json:"price" db:"price"`

	// Description is optional free text.
	Description string `json:"description,omitempty" db:"description"`

	// Slug is the unique, normalized URL identifier. It is derived from
	// the title when no explicit slug is supplied.
	Slug string `json:"slug" db:"slug"`

	// Stock is a plain non-negative counter.
	Stock int `json:"stock" db:"stock"`

	// Sizes is the ordered list of available sizes.
	Sizes []string `json:"sizes" db:"sizes"`

	// Gender is one of GenderMale or GenderFemale.
	Gender string `json:"gender" db:"gender"`

	// Tags are free-form labels.
	Tags []string `json:"tags" db:"tags"`

	// Images is the owned image collection, in insertion order.
	Images []ProductImage `json:"images"`

	// CreatedAt is the timestamp at which the product was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the product.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ImageURLs returns the image URLs in order.
func (p Product) ImageURLs() []string {
	urls := make([]string, 0, len(p.Images))
	for _, image := range p.Images {
		urls = append(urls, image.URL)
	}
	return urls
}

// ProductImage is an image row owned by exactly one product.
type ProductImage struct {
	// ID is the serial identifier of the image row.
	ID int64 `json:"id" db:"id"`

	// URL locates the image.
	URL string `json:"url" db:"url"`

	// ProductID references the owning product.
	ProductID string `json:"-" db:"product_id"`
}
