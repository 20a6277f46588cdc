package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightflow/docsplitter/internal/models"
)

func TestValidRotation(t *testing.T) {
	for _, deg := range []int{0, 90, 180, 270} {
		assert.True(t, validRotation(deg), "degrees %d", deg)
	}
	for _, deg := range []int{-90, 45, 91, 360, 1} {
		assert.False(t, validRotation(deg), "degrees %d", deg)
	}
}

func TestMergeRotations(t *testing.T) {
	descriptors := []models.DocumentDescriptor{
		{DocType: models.DocTypeInvoice, StartPage: 1, EndPage: 2},
		{DocType: models.DocTypeOBL, StartPage: 3, EndPage: 5},
	}

	t.Run("attaches per page rotation within each range", func(t *testing.T) {
		rotations := []models.PageRotation{
			{PageNo: 2, RotationDegrees: 90},
			{PageNo: 4, RotationDegrees: 180},
		}
		merged := MergeRotations(descriptors, rotations)
		require.Len(t, merged, 2)

		require.Len(t, merged[0].PagesInfo, 2)
		assert.Equal(t, models.PageRotation{PageNo: 1, RotationDegrees: 0}, merged[0].PagesInfo[0])
		assert.Equal(t, models.PageRotation{PageNo: 2, RotationDegrees: 90}, merged[0].PagesInfo[1])

		require.Len(t, merged[1].PagesInfo, 3)
		assert.Equal(t, models.PageRotation{PageNo: 4, RotationDegrees: 180}, merged[1].PagesInfo[1])
		assert.Equal(t, 0, merged[1].PagesInfo[0].RotationDegrees)
		assert.Equal(t, 0, merged[1].PagesInfo[2].RotationDegrees)
	})

	t.Run("missing rotation data defaults every page to zero", func(t *testing.T) {
		merged := MergeRotations(descriptors, nil)
		require.Len(t, merged, 2)
		for _, doc := range merged {
			require.Len(t, doc.PagesInfo, doc.PageCount())
			for _, info := range doc.PagesInfo {
				assert.Equal(t, 0, info.RotationDegrees)
			}
		}
	})

	t.Run("does not mutate the input descriptors", func(t *testing.T) {
		_ = MergeRotations(descriptors, []models.PageRotation{{PageNo: 1, RotationDegrees: 90}})
		assert.Nil(t, descriptors[0].PagesInfo)
	})

	t.Run("inverted range yields no page info", func(t *testing.T) {
		merged := MergeRotations([]models.DocumentDescriptor{{StartPage: 5, EndPage: 3}}, nil)
		require.Len(t, merged, 1)
		assert.Empty(t, merged[0].PagesInfo)
	})
}
