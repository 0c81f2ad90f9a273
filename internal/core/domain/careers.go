package domain

import "strings"

// CareerAll is the career value that opens an activity to every student.
const CareerAll = "Todas"

// openToAllAliases are compared after lower-casing.
var openToAllAliases = []string{"todas", "todos", "all"}

// Careers lists the careers a student can register with.
var Careers = []string{
	"Biomédica",
	"Ciencia de la Administración",
	"Ciencias de Alimentos",
	"Civil",
	"Civil Arquitectónica",
	"Ciencia de la Computación",
	"Mecánica",
	"Mecatrónica",
	"Química",
	"Arquitectura",
	"Bioquímica y Microbiología",
	"Física",
	"Nutrición",
	"Matemática Aplicada",
	"Antropología",
	"Arqueología",
	"Psicología",
	"Composición y Producción Musical",
	"Diseño de Producto e Innovación",
}

// ActivityCareers is Careers plus CareerAll, for activity creation.
func ActivityCareers() []string {
	out := make([]string, 0, len(Careers)+1)
	out = append(out, CareerAll)
	return append(out, Careers...)
}

// IsOpenToAll reports whether career is one of the "every career" values,
// regardless of case.
func IsOpenToAll(career string) bool {
	c := strings.ToLower(strings.TrimSpace(career))
	for _, alias := range openToAllAliases {
		if c == alias {
			return true
		}
	}
	return false
}

func SameCareer(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func IsRegistrationCareer(career string) bool {
	for _, c := range Careers {
		if SameCareer(c, career) {
			return true
		}
	}
	return false
}

func IsActivityCareer(career string) bool {
	return IsOpenToAll(career) || IsRegistrationCareer(career)
}
