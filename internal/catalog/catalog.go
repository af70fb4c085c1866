// Package catalog содержит каталог услуг и его постраничную навигацию.
package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/mmeshcher/numbermarket-system/internal/model"
)

// PageSize — максимум позиций на страницу: меню выбора вмещает 25 пунктов.
const PageSize = 25

// Catalog хранит позиции каталога и отвечает на постраничные запросы.
type Catalog struct {
	products []model.Product
}

type catalogFile struct {
	Services []struct {
		ID    json.Number `json:"id"`
		Name  string      `json:"nome"`
		Price float64     `json:"preco_final"`
		Stock int         `json:"qtd_disp"`
	} `json:"servicos"`
}

// Load читает каталог из JSON-файла.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse разбирает каталог из JSON.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	products := make([]model.Product, 0, len(f.Services))
	for _, s := range f.Services {
		products = append(products, model.Product{
			ID:         s.ID.String(),
			Name:       s.Name,
			PriceCents: int64(math.Round(s.Price * 100)),
			Stock:      s.Stock,
		})
	}

	return New(products), nil
}

// New создаёт каталог из готового списка позиций.
func New(products []model.Product) *Catalog {
	return &Catalog{products: products}
}

// Len возвращает общее число позиций.
func (c *Catalog) Len() int {
	return len(c.products)
}

// TotalPages возвращает число страниц каталога; минимум одна.
func (c *Catalog) TotalPages() int {
	if len(c.products) == 0 {
		return 1
	}
	return (len(c.products) + PageSize - 1) / PageSize
}

// Page возвращает позиции указанной страницы.
func (c *Catalog) Page(n int) []model.Product {
	if n < 0 || n*PageSize >= len(c.products) {
		return nil
	}
	end := (n + 1) * PageSize
	if end > len(c.products) {
		end = len(c.products)
	}
	return c.products[n*PageSize : end]
}

// ByID возвращает позицию по идентификатору.
func (c *Catalog) ByID(id string) (model.Product, bool) {
	for _, p := range c.products {
		if p.ID == id {
			return p, true
		}
	}
	return model.Product{}, false
}
