package models

import "encoding/json"

// DocumentArtifact represents one DARF PDF acquired for an inscription.
// InscriptionNumber may be empty when the portal no longer exposes one.
// An artifact is created once per successful emission and never mutated.
type DocumentArtifact struct {
	Cnpj              string `json:"cnpj"`
	InscriptionNumber string `json:"inscription_number,omitempty"`
	FileName          string `json:"file_name"`
	LocalPath         string `json:"local_path"`
	StorageURL        string `json:"storage_url,omitempty"`
	Size              int64  `json:"size"`
	ContentType       string `json:"content_type"`
}

// to json
func (a *DocumentArtifact) ToJson() ([]byte, error) {
	return json.Marshal(a)
}

// from json
func DocumentArtifactFromJson(j []byte) (*DocumentArtifact, error) {
	var a DocumentArtifact
	err := json.Unmarshal(j, &a)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
